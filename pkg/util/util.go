package util

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID 生成标准 UUID (v4)。动作关联号靠它保证跨客户端全局唯一
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateShortUUID 不带中划线的紧凑形式，适合放进 URL 或日志字段
func GenerateShortUUID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
