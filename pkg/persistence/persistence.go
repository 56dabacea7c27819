package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/betbot/nadsniper/pkg/logger"
)

// Store 存储接口
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
}

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// JSONFile 单文件 JSON 存储，整体覆盖写入
type JSONFile struct {
	path string
}

// NewJSONFile 创建 JSON 文件存储
func NewJSONFile(path string) *JSONFile {
	return &JSONFile{path: path}
}

// Path 返回文件路径
func (s *JSONFile) Path() string { return s.path }

// Save 先写临时文件再 rename，保证文件不会出现半截内容
func (s *JSONFile) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: path=%s", s.path)
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load 加载数据；文件不存在或为空返回 ErrNotExists
func (s *JSONFile) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: path=%s", s.path)
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return json.Unmarshal(b, data)
}
