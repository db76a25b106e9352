package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// ResolveFields 提供标识符/bucket/key/命中状态字段，供解析日志复用。
func ResolveFields(identifier, bucket, key string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"identifier": identifier,
		"bucket":     bucket,
		"key":        key,
		"cache_hit":  cacheHit,
	}
}
