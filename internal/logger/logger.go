package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log はアプリケーション全体で使うロガーです。
var Log = logrus.New()

// Setup はログレベルと出力形式を設定します。format は "text" か "json" です。
func Setup(level, format string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("ログレベルの解析に失敗しました: %w", err)
	}
	Log.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", "text":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("未対応のログ形式です: %q", format)
	}

	if out != nil {
		Log.SetOutput(out)
	}
	return nil
}
