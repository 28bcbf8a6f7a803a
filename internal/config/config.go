package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	DBType     string `env:"DBType" envDefault:"sqlite"`
	DSNURL     string `env:"DSN_URL" envDefault:""`
	DBUser     string `env:"DBUser" envDefault:""`
	DBPassword string `env:"DBPassword" envDefault:""`
	DBAddr     string `env:"DBAddr" envDefault:""`
	DBName     string `env:"DBName" envDefault:"teamshots"`
	DBPath     string `env:"DBPath" envDefault:"datas/teamshots.db"`
	DBPort     string `env:"DBPort" envDefault:"3306"`

	StorageType          string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageLocalDir      string `env:"STORAGE_LOCAL_DIR" envDefault:"datas/images"`
	StoragePublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL" envDefault:"/files"`

	// S3 兼容存储配置
	StorageS3Region          string `env:"STORAGE_S3_REGION"`
	StorageS3Bucket          string `env:"STORAGE_S3_BUCKET"`
	StorageS3Prefix          string `env:"STORAGE_S3_PREFIX"`
	StorageS3Endpoint        string `env:"STORAGE_S3_ENDPOINT"`
	StorageS3AccessKeyID     string `env:"STORAGE_S3_ACCESS_KEY_ID"`
	StorageS3SecretAccessKey string `env:"STORAGE_S3_SECRET_ACCESS_KEY"`
	StorageS3SessionToken    string `env:"STORAGE_S3_SESSION_TOKEN"`
	StorageS3ForcePathStyle  bool   `env:"STORAGE_S3_FORCE_PATH_STYLE" envDefault:"false"`

	// 阿里云 OSS 存储配置
	StorageOSSEndpoint        string `env:"STORAGE_OSS_ENDPOINT"`
	StorageOSSBucket          string `env:"STORAGE_OSS_BUCKET"`
	StorageOSSPrefix          string `env:"STORAGE_OSS_PREFIX"`
	StorageOSSAccessKeyID     string `env:"STORAGE_OSS_ACCESS_KEY_ID"`
	StorageOSSAccessKeySecret string `env:"STORAGE_OSS_ACCESS_KEY_SECRET"`

	// 腾讯云 COS 存储配置
	StorageCOSBucketURL string `env:"STORAGE_COS_BUCKET_URL"`
	StorageCOSPrefix    string `env:"STORAGE_COS_PREFIX"`
	StorageCOSSecretID  string `env:"STORAGE_COS_SECRET_ID"`
	StorageCOSSecretKey string `env:"STORAGE_COS_SECRET_KEY"`

	// Cloudflare R2 存储配置
	StorageR2AccountID       string `env:"STORAGE_R2_ACCOUNT_ID"`
	StorageR2Endpoint        string `env:"STORAGE_R2_ENDPOINT"`
	StorageR2Region          string `env:"STORAGE_R2_REGION" envDefault:"auto"`
	StorageR2Bucket          string `env:"STORAGE_R2_BUCKET"`
	StorageR2Prefix          string `env:"STORAGE_R2_PREFIX"`
	StorageR2AccessKeyID     string `env:"STORAGE_R2_ACCESS_KEY_ID"`
	StorageR2SecretAccessKey string `env:"STORAGE_R2_SECRET_ACCESS_KEY"`

	// AI 供应商，按 PROVIDER_CHAIN 顺序组成回退链
	ProviderChain    string `env:"PROVIDER_CHAIN" envDefault:"gemini,openrouter,volcengine,fal"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY" envDefault:""`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash-image-preview"`
	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY" envDefault:""`
	OpenRouterModel  string `env:"OPENROUTER_MODEL" envDefault:"google/gemini-2.5-flash-image-preview"`
	VolcengineAPIKey string `env:"VOLCENGINE_API_KEY" envDefault:""`
	VolcengineModel  string `env:"VOLCENGINE_MODEL" envDefault:"doubao-seedream-4-0-250828"`
	FalAPIKey        string `env:"FAL_KEY" envDefault:""`
	FalModel         string `env:"FAL_MODEL" envDefault:"fal-ai/hunyuan-image/v3/text-to-image"`

	ProviderCallTimeout time.Duration `env:"PROVIDER_CALL_TIMEOUT" envDefault:"120s"`

	// 积分
	CreditsPerGeneration     int64         `env:"CREDITS_PER_GENERATION" envDefault:"5"`
	CreditReservationTimeout time.Duration `env:"CREDIT_RESERVATION_TIMEOUT" envDefault:"30m"`

	// 再生成额度：按套餐档位解析，未知档位使用默认值
	RegenerationsDefault int `env:"REGENERATIONS_DEFAULT" envDefault:"2"`
	RegenerationsPro     int `env:"REGENERATIONS_PRO" envDefault:"5"`
	RegenerationsScale   int `env:"REGENERATIONS_SCALE" envDefault:"10"`

	WorkerCount int  `env:"WORKER_COUNT" envDefault:"2"`
	DebugAssets bool `env:"DEBUG_ASSETS" envDefault:"false"`

	TierCacheSize int           `env:"TIER_CACHE_SIZE" envDefault:"256"`
	TierCacheTTL  time.Duration `env:"TIER_CACHE_TTL" envDefault:"1m"`

	JWTSecret            string `env:"JWT_SECRET" envDefault:"dev-secret-change-me"`
	JWTIssuer            string `env:"JWT_ISSUER" envDefault:"teamshots-app"`
	JWTExpirationMinutes int    `env:"JWT_EXPIRATION_MINUTES" envDefault:"1440"`
}

func ParseConfig() (Config, error) {
	var Conf Config
	err := env.Parse(&Conf)
	if err != nil {
		logrus.WithError(err).Error("env.Parse error")
		return Config{}, err
	}
	logrus.Debugf("%#v\n", Conf)
	return Conf, nil
}

// RegenerationsForTier 按套餐档位返回再生成额度。
func (c Config) RegenerationsForTier(tier string) int {
	switch tier {
	case "pro":
		return c.RegenerationsPro
	case "scale":
		return c.RegenerationsScale
	default:
		return c.RegenerationsDefault
	}
}
