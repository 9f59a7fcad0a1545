package resolver

import "strings"

// MatchPackagePath 从请求路径中提取包名。识别四种形态：
//
//	/<name>
//	/<name>/
//	/<name>/latest
//	/<name>/latest/<anything>
//
// 包名是第一个路径段，一个或多个非 '/' 字符，按原样返回，不做归一化。
// 其余任何形态（空段、latest 之外的额外段）均视为不匹配。
// 纯函数，无副作用。
func MatchPackagePath(path string) (string, bool) {
	if !strings.HasPrefix(path, "/") {
		return "", false
	}

	name, rest, hasRest := strings.Cut(path[1:], "/")
	if name == "" {
		return "", false
	}
	if !hasRest {
		return name, true
	}

	switch {
	case rest == "":
		return name, true
	case rest == "latest":
		return name, true
	case strings.HasPrefix(rest, "latest/"):
		return name, true
	}
	return "", false
}
