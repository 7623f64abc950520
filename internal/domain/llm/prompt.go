package llm

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	"cn-chinese-link/internal/domain/persona"
)

const systemPromptTpl = `你是中文学习应用中的虚拟角色。
角色: %s (%s)
性格: %s
场景: %s
学生水平: HSK %d

回复规则:
1. 沉浸角色，用符合身份的语气说话
2. 根据HSK%d级调整用语难度
3. 回复简洁自然(1-3句话)

输出JSON格式:
{"chinese": "中文回复", "pinyin": "拼音", "english": "英文翻译", "keywords": [{"word": "生词", "meaning": "释义"}], "suggestions": ["回复选项1", "回复选项2", "回复选项3"]}

只返回JSON！`

// BuildSystemPrompt 角色扮演的系统提示词
func BuildSystemPrompt(role *persona.Role, scene string, hskLevel int) string {
	return fmt.Sprintf(systemPromptTpl, role.Name, role.Title, role.Personality, scene, hskLevel, hskLevel)
}

// OpeningPrompt 让角色先开口的隐藏用户消息
func OpeningPrompt(role *persona.Role, scene string) string {
	return fmt.Sprintf("（场景开始：%s）请你作为%s先开口说第一句话。", scene, role.Name)
}

// BuildDialogue 在历史消息前加上系统提示词
func BuildDialogue(role *persona.Role, scene string, hskLevel int, history []*schema.Message) []*schema.Message {
	dialogue := make([]*schema.Message, 0, len(history)+1)
	dialogue = append(dialogue, schema.SystemMessage(BuildSystemPrompt(role, scene, hskLevel)))
	return append(dialogue, history...)
}
