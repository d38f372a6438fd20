// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"strings"
)

// ランタイム名。
const (
	RuntimeGoja = "goja"
	RuntimeNode = "node"
)

// Config はアプリケーション設定を表す。
type Config struct {
	ConfigPath      string   // 状態ドキュメントのパス
	RootDir         string   // プロジェクトフォルダを置くルート
	Runtime         string   // goja または node
	NodePath        string   // node ランタイム使用時の実行ファイル
	TsconfigPath    string   // 明示的な tsconfig.json（空の場合は上方向に探索）
	SandboxEnvAllow []string // ユニットに渡す環境変数（空の場合は全て）
	HistoryDSN      string   // 実行履歴DB（空の場合は無効）
	LogLevel        string
	Port            string

	GoogleCloudProject string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		ConfigPath:         getEnv("DMCS_CONFIG", ".dmcs.config.json"),
		RootDir:            getEnv("DMCS_ROOT", ".dmcs"),
		Runtime:            getEnv("DMCS_RUNTIME", RuntimeGoja),
		NodePath:           getEnv("DMCS_NODE_PATH", "node"),
		TsconfigPath:       os.Getenv("DMCS_TSCONFIG"),
		SandboxEnvAllow:    splitList(os.Getenv("DMCS_SANDBOX_ENV")),
		HistoryDSN:         os.Getenv("DMCS_HISTORY_DSN"),
		LogLevel:           getEnv("LOG_LEVEL", "WARN"),
		Port:               getEnv("PORT", "8080"),
		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		OtelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "dmcs"),
		OtelSamplingRate:   getEnvFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || val < 0 || val > 1 {
		return defaultVal
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
