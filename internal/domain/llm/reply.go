package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/spf13/cast"

	"cn-chinese-link/internal/domain/llm/common"
)

// ErrMalformedReply 模型输出无法解析为JSON对象
var ErrMalformedReply = errors.New("malformed llm reply")

// FallbackReply 模型输出解析失败时给用户的兜底回复
func FallbackReply() *common.Reply {
	return &common.Reply{
		Chinese:     "抱歉，我没听清，请再说一遍。",
		Pinyin:      "bào qiàn, wǒ méi tīng qīng",
		English:     "Sorry, I didn't catch that.",
		Keywords:    []common.Keyword{},
		Suggestions: []string{"请再说一遍", "好的"},
	}
}

// ParseReply 解析模型输出，缺失字段补空值
func ParseReply(raw string) (*common.Reply, error) {
	raw = stripCodeFence(raw)

	var obj map[string]interface{}
	if err := unmarshalJSON([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedReply)
	}

	reply := &common.Reply{
		Chinese:     textField(obj["chinese"]),
		Pinyin:      textField(obj["pinyin"]),
		English:     textField(obj["english"]),
		Keywords:    keywordsField(obj["keywords"]),
		Suggestions: suggestionsField(obj["suggestions"]),
	}
	return reply, nil
}

// unmarshalJSON 语法错误时先修复再解析
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		fixed, rerr := jsonrepair.JSONRepair(string(data))
		if rerr != nil {
			return rerr
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func textField(v interface{}) string {
	if v == nil {
		return ""
	}
	return cast.ToString(v)
}

func keywordsField(v interface{}) []common.Keyword {
	items, _ := v.([]interface{})
	keywords := make([]common.Keyword, 0, len(items))
	for _, item := range items {
		switch kw := item.(type) {
		case map[string]interface{}:
			word := textField(kw["word"])
			if word == "" {
				continue
			}
			keywords = append(keywords, common.Keyword{Word: word, Meaning: textField(kw["meaning"])})
		default:
			// 字符串、数字等标量整体当作词
			if word := textField(kw); word != "" {
				keywords = append(keywords, common.Keyword{Word: word})
			}
		}
	}
	return keywords
}

func suggestionsField(v interface{}) []string {
	items, _ := v.([]interface{})
	suggestions := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			suggestions = append(suggestions, s)
		}
	}
	return suggestions
}
