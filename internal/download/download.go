package download

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// VerifyMD5 校验文件的 MD5
func VerifyMD5(path, md5hex string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}

	return hex.EncodeToString(h.Sum(nil)) == md5hex
}

// Fetch 下载归档并校验 MD5
//
// 目标文件已存在且 MD5 一致时跳过下载。下载先写入 .part 临时文件,
// 校验通过后再重命名, 避免留下损坏的归档。
func Fetch(url, dest, md5hex string) error {
	if VerifyMD5(dest, md5hex) {
		fmt.Printf("[Download] 使用缓存: %s\n", filepath.Base(dest))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	fmt.Printf("[Download] 下载: %s\n", url)

	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s", resp.Status)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	written, err := io.Copy(f, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmp)
		return err
	}

	if !VerifyMD5(tmp, md5hex) {
		os.Remove(tmp)
		return fmt.Errorf("md5 mismatch: %s", filepath.Base(dest))
	}

	if err := os.Rename(tmp, dest); err != nil {
		return err
	}

	fmt.Printf("[Download] ✓ 完成: %s (%d 字节)\n", filepath.Base(dest), written)
	return nil
}
