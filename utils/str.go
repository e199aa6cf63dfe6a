package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// 解析以sep分隔的整数列表，忽略空项
func StrToInts(s, sep string) (rets []int, err error) {
	var i int
	for _, id := range strings.Split(s, sep) {
		if id = strings.TrimSpace(id); id == "" {
			continue
		}
		if i, err = strconv.Atoi(id); err != nil {
			err = fmt.Errorf("invalid integer %q in %q", id, s)
			return
		}
		rets = append(rets, i)
	}
	return
}

func TrimTailCommas(s string) string {
	return strings.TrimRight(s, ",")
}

// 解析逗号分隔的KEY=VALUE选项，键转为大写
func SplitOptions(s string) (opts []string, err error) {
	for _, kv := range strings.Split(TrimTailCommas(s), ",") {
		if kv = strings.TrimSpace(kv); kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			err = fmt.Errorf("invalid option %q, want KEY=VALUE", kv)
			return
		}
		opts = append(opts, strings.ToUpper(strings.TrimSpace(k))+"="+strings.TrimSpace(v))
	}
	return
}
