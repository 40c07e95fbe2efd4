package dataset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidLabel 路径无法解析出类别标签
var ErrInvalidLabel = errors.New("invalid label format")

// ExtractLabel 从样本路径提取类别标签
//
// 标签为倒数第二个 `/` 分隔段, 如 train/7/00123.bin -> 7。
// 路径不足两段或该段不是整数时返回 ErrInvalidLabel。
func ExtractLabel(path string) (int, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, path)
	}

	label, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLabel, path)
	}

	return label, nil
}
