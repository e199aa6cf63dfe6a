package utils

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	FILE_EXT_SHP = ".shp"
	FILE_EXT_TMP = ".tmp"
)

var (
	shpSidecars    = []string{".shx", ".dbf", ".prj", ".cpg", ".qix", ".sbn", ".sbx"}
	rasterSidecars = []string{".aux.xml", ".ovr", ".msk"}
)

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// 删除数据文件及其附属文件，文件不存在不报错
func RemoveDataset(path string) (err error) {
	files := []string{path}
	if strings.EqualFold(filepath.Ext(path), FILE_EXT_SHP) {
		prefix := strings.TrimSuffix(path, filepath.Ext(path))
		for _, ext := range shpSidecars {
			files = append(files, prefix+ext)
		}
	} else {
		for _, ext := range rasterSidecars {
			files = append(files, path+ext)
		}
	}
	for _, f := range files {
		if e := os.Remove(f); e != nil && !errors.Is(e, fs.ErrNotExist) {
			err = e
			return
		}
	}
	return
}

// 同目录下的唯一临时文件名
func GetUniqTempPath(path string) string {
	dir, name := filepath.Split(path)
	return filepath.Join(dir, "."+name+"."+uuid.NewString()+FILE_EXT_TMP)
}

// 先写临时文件再改名，保证读者只看到完整文件
func WriteFileAtomic(path string, data []byte) (err error) {
	tmp := GetUniqTempPath(path)
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
	}
	return
}
