package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"QueryChain/internal/tools"
)

// ToolData 是工具使用的静态数据表，来自 configs/tools.yaml。
type ToolData struct {
	Rates     map[string]float64 `yaml:"rates"`
	Cities    map[string]float64 `yaml:"cities"`
	LiveRates LiveRatesConfig    `yaml:"live_rates"`
}

// LiveRatesConfig 描述可选的实时汇率接口。
type LiveRatesConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LoadToolData 读取工具数据。path 为空时返回内置数据表；文件中缺省的表同样回退到内置数据。
func LoadToolData(path string) (*ToolData, error) {
	data := &ToolData{}
	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取工具数据失败: %w", err)
		}
		if err := yaml.Unmarshal(content, data); err != nil {
			return nil, fmt.Errorf("解析工具数据失败: %w", err)
		}
	}
	if err := data.validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *ToolData) validate() error {
	for code, rate := range d.Rates {
		if len(strings.TrimSpace(code)) != 3 {
			return fmt.Errorf("汇率表中的货币代码无效: %q", code)
		}
		if rate <= 0 {
			return fmt.Errorf("货币 %s 的汇率必须为正数", code)
		}
	}
	if d.LiveRates.Enabled && d.LiveRates.APIKeyEnv == "" {
		d.LiveRates.APIKeyEnv = "EXCHANGE_RATE_API_KEY"
	}
	return nil
}

// RateTable 返回汇率表，未配置时使用内置表。
func (d *ToolData) RateTable() tools.Rates {
	if d == nil || len(d.Rates) == 0 {
		return tools.DefaultRates()
	}
	return tools.NewRates(d.Rates)
}

// CityTable 返回城市气温表，未配置时使用内置表。
func (d *ToolData) CityTable() tools.CityTable {
	if d == nil || len(d.Cities) == 0 {
		return tools.DefaultCityTable()
	}
	return tools.NewCityTable(d.Cities)
}

// LiveSource 返回实时汇率源，未启用或缺少 API Key 时返回 nil。
func (d *ToolData) LiveSource() tools.RateSource {
	if d == nil || !d.LiveRates.Enabled {
		return nil
	}
	key := strings.TrimSpace(os.Getenv(d.LiveRates.APIKeyEnv))
	if key == "" {
		return nil
	}
	timeout := time.Duration(d.LiveRates.TimeoutSeconds) * time.Second
	return tools.NewExchangeRateAPI(d.LiveRates.BaseURL, key, timeout)
}
