package dataset

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"nmnist-viewer/internal/models"
)

// BinExt 样本文件扩展名
const BinExt = ".bin"

// Catalog 数据集归档目录
//
// 打开 train.zip/test.zip, 枚举其中的 .bin 样本并解析标签。
type Catalog struct {
	FilePath string
	Samples  []models.SampleInfo

	reader *zip.ReadCloser
	byPath map[string]*zip.File
}

// NewCatalog 创建目录解析器
func NewCatalog(filePath string) *Catalog {
	return &Catalog{
		FilePath: filePath,
	}
}

// Parse 打开归档并枚举样本
func (c *Catalog) Parse() error {
	r, err := zip.OpenReader(c.FilePath)
	if err != nil {
		return err
	}
	c.reader = r
	c.byPath = make(map[string]*zip.File)

	skipped := 0
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		// 过滤非 .bin 文件
		if !strings.HasSuffix(f.Name, BinExt) {
			continue
		}

		// 跳过无法解析标签的条目
		label, err := ExtractLabel(f.Name)
		if err != nil {
			skipped++
			continue
		}

		c.byPath[f.Name] = f
		c.Samples = append(c.Samples, models.SampleInfo{
			Path:  f.Name,
			Label: label,
			Size:  int64(f.UncompressedSize64),
		})
	}

	// 按路径正序排列，保证样本索引稳定
	sort.Slice(c.Samples, func(i, j int) bool {
		return c.Samples[i].Path < c.Samples[j].Path
	})

	if skipped > 0 {
		fmt.Printf("[Catalog] 跳过 %d 个无效标签条目\n", skipped)
	}
	fmt.Printf("[Catalog] 解析: %s (%d 个样本)\n", filepath.Base(c.FilePath), len(c.Samples))
	return nil
}

// Count 样本总数
func (c *Catalog) Count() int {
	return len(c.Samples)
}

// Labels 返回排序后的所有类别
func (c *Catalog) Labels() []int {
	labelMap := make(map[int]bool)
	for _, s := range c.Samples {
		labelMap[s.Label] = true
	}

	var labels []int
	for l := range labelMap {
		labels = append(labels, l)
	}
	sort.Ints(labels)
	return labels
}

// ByLabel 返回指定类别的样本
func (c *Catalog) ByLabel(label int) []models.SampleInfo {
	var out []models.SampleInfo
	for _, s := range c.Samples {
		if s.Label == label {
			out = append(out, s)
		}
	}
	return out
}

// ReadSample 读取一个样本的原始字节
func (c *Catalog) ReadSample(path string) ([]byte, error) {
	f, ok := c.byPath[path]
	if !ok {
		return nil, fmt.Errorf("sample not found: %s", path)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Close 关闭归档
func (c *Catalog) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
