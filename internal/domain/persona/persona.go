package persona

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cn-chinese-link/constants"
)

//go:embed roles.yaml
var rolesYAML []byte

// Role 对话角色
type Role struct {
	Name          string   `yaml:"name" json:"name"`
	Title         string   `yaml:"title" json:"title"`
	TitleEN       string   `yaml:"title_en" json:"title_en"`
	Avatar        string   `yaml:"avatar" json:"avatar"`
	Description   string   `yaml:"description" json:"description"`
	DescriptionEN string   `yaml:"description_en" json:"description_en"`
	Personality   string   `yaml:"personality" json:"personality"`
	Scenes        []string `yaml:"scenes" json:"scenes"`
	ScenesEN      []string `yaml:"scenes_en" json:"scenes_en"`
	Gender        string   `yaml:"gender" json:"gender"`
	Voice         string   `yaml:"voice" json:"voice"`
	VoiceStyle    string   `yaml:"voice_style" json:"voice_style"`
}

func (r *Role) IsMale() bool {
	return r.Gender == "male"
}

func (r *Role) HasScene(scene string) bool {
	for _, s := range r.Scenes {
		if s == scene {
			return true
		}
	}
	return false
}

// SceneEN 返回场景的英文名，找不到时返回原名
func (r *Role) SceneEN(scene string) string {
	for i, s := range r.Scenes {
		if s == scene && i < len(r.ScenesEN) {
			return r.ScenesEN[i]
		}
	}
	return scene
}

// HSKLevel HSK等级及展示名
type HSKLevel struct {
	Level int    `json:"level"`
	Label string `json:"label"`
}

// PolyphoneHint 文本中命中的多音字读音提示
type PolyphoneHint struct {
	Char    string `json:"char"`
	Word    string `json:"word"`
	Reading string `json:"reading"`
}

// Catalog 角色、等级、多音字词典
type Catalog struct {
	roles      []*Role
	byName     map[string]*Role
	hsk        map[int]string
	polyphones map[string]map[string]string
}

type catalogFile struct {
	Roles      []*Role                      `yaml:"roles"`
	HSKLevels  map[int]string               `yaml:"hsk_levels"`
	Polyphones map[string]map[string]string `yaml:"polyphones"`
}

// Parse 解析yaml格式的角色目录
func Parse(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roles: %w", err)
	}
	if len(f.Roles) == 0 {
		return nil, fmt.Errorf("roles is empty")
	}

	c := &Catalog{
		roles:      f.Roles,
		byName:     make(map[string]*Role, len(f.Roles)),
		hsk:        f.HSKLevels,
		polyphones: f.Polyphones,
	}
	for _, r := range f.Roles {
		if r.Name == "" {
			return nil, fmt.Errorf("role without name")
		}
		if _, dup := c.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate role %s", r.Name)
		}
		if len(r.ScenesEN) != 0 && len(r.ScenesEN) != len(r.Scenes) {
			return nil, fmt.Errorf("role %s: scenes and scenes_en length mismatch", r.Name)
		}
		c.byName[r.Name] = r
	}
	return c, nil
}

var defaultCatalog *Catalog

func init() {
	c, err := Parse(rolesYAML)
	if err != nil {
		panic(err)
	}
	defaultCatalog = c
}

// Default 内置角色目录
func Default() *Catalog {
	return defaultCatalog
}

// Roles 按配置顺序返回全部角色
func (c *Catalog) Roles() []*Role {
	return c.roles
}

func (c *Catalog) Get(name string) (*Role, bool) {
	r, ok := c.byName[name]
	return r, ok
}

// HSKLevels 按等级升序
func (c *Catalog) HSKLevels() []HSKLevel {
	levels := make([]HSKLevel, 0, len(c.hsk))
	for lv, label := range c.hsk {
		levels = append(levels, HSKLevel{Level: lv, Label: label})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	return levels
}

func (c *Catalog) HSKLabel(level int) string {
	if label, ok := c.hsk[level]; ok {
		return label
	}
	return fmt.Sprintf("HSK %d", level)
}

func (c *Catalog) ValidHSK(level int) bool {
	_, ok := c.hsk[level]
	return ok
}

// NormalizeHSK 非法等级回落到默认等级
func (c *Catalog) NormalizeHSK(level int) int {
	if c.ValidHSK(level) {
		return level
	}
	return constants.DefaultHSKLevel
}

// PolyphoneHints 找出文本里词典收录的多音字词，按出现位置排序
func (c *Catalog) PolyphoneHints(text string) []PolyphoneHint {
	if text == "" {
		return nil
	}
	type hit struct {
		pos int
		PolyphoneHint
	}
	var hits []hit
	for char, words := range c.polyphones {
		for word, reading := range words {
			pos := strings.Index(text, word)
			if pos < 0 {
				continue
			}
			hits = append(hits, hit{pos: pos, PolyphoneHint: PolyphoneHint{Char: char, Word: word, Reading: reading}})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		if hits[i].Word != hits[j].Word {
			return hits[i].Word < hits[j].Word
		}
		// 同一个词含两个多音字时按字在词中的位置
		return strings.Index(hits[i].Word, hits[i].Char) < strings.Index(hits[j].Word, hits[j].Char)
	})
	out := make([]PolyphoneHint, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.PolyphoneHint)
	}
	return out
}
