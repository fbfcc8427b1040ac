package bootstrap

import (
	"os"
	"strings"
	"testing"
)

// 条件更新依赖 RowsAffected 表示"命中行数"。go-sql-driver 默认按
// 改动行数上报，原地重写同值会得到 0 而被误判成条件不满足，
// 所以 DSN 必须始终带 clientFoundRows=true。
func TestMysqlDSNCountsMatchedRows(t *testing.T) {
	if dsn := defaultConfig().Infra.Mysql.DSN; !strings.Contains(dsn, "clientFoundRows=true") {
		t.Errorf("default DSN missing clientFoundRows=true: %s", dsn)
	}

	data, err := os.ReadFile("../../../configs/config.yaml")
	if err != nil {
		t.Fatalf("read shipped config: %v", err)
	}
	if !strings.Contains(string(data), "clientFoundRows=true") {
		t.Error("shipped config.yaml DSN missing clientFoundRows=true")
	}
}

func TestDefaultConfigHasKnownDelayLevel(t *testing.T) {
	cfg := defaultConfig()
	if cfg.App.VerificationDelayLevel != "delay_topic_30s" {
		t.Errorf("verification delay level = %q", cfg.App.VerificationDelayLevel)
	}
	if len(cfg.Infra.Kafka.Brokers) == 0 {
		t.Error("default config has no kafka brokers")
	}
}
