package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供包名/命中状态等字段，供请求处理日志复用。
func RequestFields(pkg, outcome string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"package":   pkg,
		"outcome":   outcome,
		"cache_hit": cacheHit,
	}
}
