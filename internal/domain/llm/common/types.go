package common

// Keyword 回复里标注的生词
type Keyword struct {
	Word    string `json:"word"`
	Meaning string `json:"meaning"`
}

// Reply 角色的一轮结构化回复
type Reply struct {
	Chinese     string    `json:"chinese"`
	Pinyin      string    `json:"pinyin"`
	English     string    `json:"english"`
	Keywords    []Keyword `json:"keywords"`
	Suggestions []string  `json:"suggestions"`
}
