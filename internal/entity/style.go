package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// 风格包类型。每个包对应一组强类型的设置字段，
// 内部代码不再以开放 map 的形式传递风格设置。
const (
	StylePackageStudio        = "studio"
	StylePackageEnvironmental = "environmental"
	StylePackageCustom        = "custom-background"
)

// StudioStyle 是棚拍风格包的设置。
type StudioStyle struct {
	BackdropColor string `json:"backdrop_color"`
	Lighting      string `json:"lighting,omitempty"`
	Outfit        string `json:"outfit,omitempty"`
}

// EnvironmentalStyle 是场景风格包的设置。
type EnvironmentalStyle struct {
	Environment      string `json:"environment"`
	SceneDescription string `json:"scene_description,omitempty"`
	Branding         bool   `json:"branding,omitempty"`
}

// CustomBackgroundStyle 使用用户上传的背景图。
type CustomBackgroundStyle struct {
	BackgroundKey string `json:"background_key"`
	Branding      bool   `json:"branding,omitempty"`
}

// StyleSettings 是按风格包区分的带标签联合体。
// Package 决定哪一个分支有效；序列化契约只存在于包边界。
type StyleSettings struct {
	Package string `json:"package"`

	Studio        *StudioStyle           `json:"studio,omitempty"`
	Environmental *EnvironmentalStyle    `json:"environmental,omitempty"`
	Custom        *CustomBackgroundStyle `json:"custom,omitempty"`

	// 输出格式参考尺寸，引擎据此吸附到受支持的宽高比
	FormatWidth  int `json:"format_width,omitempty"`
	FormatHeight int `json:"format_height,omitempty"`
}

// Validate 校验联合体的分支与 Package 一致。
func (s StyleSettings) Validate() error {
	switch s.Package {
	case StylePackageStudio:
		if s.Studio == nil {
			return errors.New("style settings: studio package requires studio fields")
		}
		if strings.TrimSpace(s.Studio.BackdropColor) == "" {
			return errors.New("style settings: backdrop_color is required")
		}
	case StylePackageEnvironmental:
		if s.Environmental == nil {
			return errors.New("style settings: environmental package requires environmental fields")
		}
		if strings.TrimSpace(s.Environmental.Environment) == "" {
			return errors.New("style settings: environment is required")
		}
	case StylePackageCustom:
		if s.Custom == nil {
			return errors.New("style settings: custom-background package requires custom fields")
		}
		if strings.TrimSpace(s.Custom.BackgroundKey) == "" {
			return errors.New("style settings: background_key is required")
		}
	case "":
		return errors.New("style settings: package is required")
	default:
		return fmt.Errorf("style settings: unknown package %q", s.Package)
	}
	return nil
}

// WantsBranding 返回该设置是否要求在背景中植入品牌标识。
func (s StyleSettings) WantsBranding() bool {
	switch s.Package {
	case StylePackageEnvironmental:
		return s.Environmental != nil && s.Environmental.Branding
	case StylePackageCustom:
		return s.Custom != nil && s.Custom.Branding
	}
	return false
}

// EncodeStyleSettings 将设置序列化为存储文本。
func EncodeStyleSettings(s StyleSettings) (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode style settings: %w", err)
	}
	return string(raw), nil
}

// DecodeStyleSettings 从存储文本还原设置并校验。
func DecodeStyleSettings(raw string) (StyleSettings, error) {
	var s StyleSettings
	if strings.TrimSpace(raw) == "" {
		return s, errors.New("style settings payload is empty")
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return s, fmt.Errorf("decode style settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}
