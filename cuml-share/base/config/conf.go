package config

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// defaultConfigYml 没有配置文件时兜底的默认配置
const defaultConfigYml = `
server_config:
  http_port: "19124"
logger_config:
  level: "info"
  path: "./logs"
  max_age: 7
  rotation_time: 24
  rotation_size: 512
trainer_config:
  tree_num: 10
  max_depth: 16
  max_leaves: -1
  max_batch_size: 4096
  n_bins: 128
  min_samples_split: 2
  min_samples_leaf: 1
  split_criterion: "gini"
  max_features: 1.0
  bootstrap: true
  seed: 42
`

// All 全部配置索引
var All *AllConfig

var DefaultPath = "./config"
var DebugPath = "./base/config"

// InitConfig 初始化读取配置文件
func InitConfig() {
	v := viper.New()
	//默认配置文件所在目录
	defaultPath := DefaultPath

	v.AddConfigPath(defaultPath)
	v.SetConfigName("config")
	configType := "yml"
	v.SetConfigType(configType)

	// 读取配置，没有配置文件时退到内置的默认配置
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("read config failed (%v), fall back to built-in defaults\n", err)
		All = &AllConfig{}
		if err := yaml.Unmarshal([]byte(defaultConfigYml), All); err != nil {
			panic(err)
		}
		applyTrainerDefaults(All)
		return
	}

	configs := v.AllSettings()

	// SetDefault使用：全部以默认配置写入
	for k, val := range configs {
		v.SetDefault(k, val)
	}

	//增量配置
	debugEnv := os.Getenv("DEBUG")
	// 根据配置的env读取相应的配置信息
	if debugEnv == "true" {

		fmt.Println("debugEnv DEBUG=true")
		newPath := DebugPath
		debug := "debug"
		newConfigName := debug + ".yml"
		newConfigPath := newPath + "/" + newConfigName
		exists, _ := isExists(newConfigPath)

		if exists {
			fmt.Printf("%s exists\n", newConfigPath)
			v.AddConfigPath(newPath)
			v.SetConfigName(debug)
			v.SetConfigType(configType)
			err := v.ReadInConfig()
			if err != nil {
				panic(err)
			}
		} else {
			fmt.Printf("%s not exists\n", newConfigPath)
		}
	}

	// 监控配置文件变化并热加载程序
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("Config file changed: %s", e.Name)
	})

	// 配置映射到结构体
	All = &AllConfig{}
	if err := v.Unmarshal(All); err != nil {
		panic(err)
	}

	applyTrainerDefaults(All)

	// 这里可以做检查，如果配置文件相关配置项异常亦可以不启动
	fmt.Printf("config file content:\n%+v\n", *All)

}

// applyTrainerDefaults 给漏配的训练项兜底
func applyTrainerDefaults(all *AllConfig) {
	if all.Trainer.NBins == 0 {
		all.Trainer.NBins = 128
	}
	if all.Trainer.MaxBatchSize == 0 {
		all.Trainer.MaxBatchSize = 4096
	}
	if all.Trainer.TreeNum == 0 {
		all.Trainer.TreeNum = 10
	}
	if all.Trainer.MinSamplesSplit == 0 {
		all.Trainer.MinSamplesSplit = 2
	}
	if all.Trainer.MinSamplesLeaf == 0 {
		all.Trainer.MinSamplesLeaf = 1
	}
	if all.Trainer.MaxFeatures == 0 {
		all.Trainer.MaxFeatures = 1.0
	}
	if all.Trainer.SplitCriterion == "" {
		all.Trainer.SplitCriterion = "gini"
	}
}

// AllConfig 全部配置文件
type AllConfig struct {
	Server  ServerConfig  `mapstructure:"server_config" yaml:"server_config"`
	Logger  LoggerConfig  `mapstructure:"logger_config" yaml:"logger_config"`
	Trainer TrainerConfig `mapstructure:"trainer_config" yaml:"trainer_config"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	HttpPort  string `mapstructure:"http_port" yaml:"http_port"`
	SentryDsn string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	MaxMemory int    `mapstructure:"max_memory" yaml:"max_memory"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string        `mapstructure:"level" yaml:"level"`
	Path         string        `mapstructure:"path" yaml:"path"`
	MaxAge       time.Duration `mapstructure:"max_age" yaml:"max_age"`
	RotationTime time.Duration `mapstructure:"rotation_time" yaml:"rotation_time"`
	RotationSize uint32        `mapstructure:"rotation_size" yaml:"rotation_size"`
}

// TrainerConfig 训练相关的默认配置，请求里没给的项用这里的
type TrainerConfig struct {
	TreeNum             int     `mapstructure:"tree_num" yaml:"tree_num"`
	MaxDepth            int     `mapstructure:"max_depth" yaml:"max_depth"`
	MaxLeaves           int     `mapstructure:"max_leaves" yaml:"max_leaves"`
	MaxBatchSize        int     `mapstructure:"max_batch_size" yaml:"max_batch_size"`
	NBins               int     `mapstructure:"n_bins" yaml:"n_bins"`
	MinSamplesSplit     int     `mapstructure:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf      int     `mapstructure:"min_samples_leaf" yaml:"min_samples_leaf"`
	MinImpurityDecrease float64 `mapstructure:"min_impurity_decrease" yaml:"min_impurity_decrease"`
	SplitCriterion      string  `mapstructure:"split_criterion" yaml:"split_criterion"`
	MaxFeatures         float64 `mapstructure:"max_features" yaml:"max_features"`
	Bootstrap           bool    `mapstructure:"bootstrap" yaml:"bootstrap"`
	BootstrapFeatures   bool    `mapstructure:"bootstrap_features" yaml:"bootstrap_features"`
	QuantilePerTree     bool    `mapstructure:"quantile_per_tree" yaml:"quantile_per_tree"`
	Seed                int64   `mapstructure:"seed" yaml:"seed"`
}

// GetAppPath 获取项目运行时的绝对目录
func GetAppPath() string {
	return getCurrentAbPath()
}

// 获取绝对路径。。最终方案-全兼容
func getCurrentAbPath() string {
	dir := getCurrentAbPathByExecutable()
	tmpDir, _ := filepath.EvalSymlinks(os.TempDir())
	if strings.Contains(dir, tmpDir) {
		return getCurrentAbPathByCaller()
	}
	return dir
}

// 获取当前执行文件绝对路径
func getCurrentAbPathByExecutable() string {
	exePath, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}
	res, _ := filepath.EvalSymlinks(filepath.Dir(exePath))
	return res
}

// 获取当前执行文件绝对路径（go run）
func getCurrentAbPathByCaller() string {
	var abPath string
	_, filename, _, ok := runtime.Caller(0)
	if ok {
		abPath = path.Dir(filename)
	}
	return abPath
}

// 判断所给文件/文件夹是否存在
func isExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	//isnotexist来判断，是不是不存在的错误
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
