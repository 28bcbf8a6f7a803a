package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mvh70/teamshots-sub010/internal/entity"
)

// SceneSpec 是发给供应商的结构化场景描述。提示词由它序列化而来，
// 自然语言指令后附带结构化 JSON，保证可机检、可对比。
type SceneSpec struct {
	Subject       string   `json:"subject"`
	Environment   string   `json:"environment,omitempty"`
	SceneDetails  string   `json:"scene_details,omitempty"`
	BackdropColor string   `json:"backdrop_color,omitempty"`
	Lighting      string   `json:"lighting,omitempty"`
	Outfit        string   `json:"outfit,omitempty"`
	Branding      bool     `json:"branding,omitempty"`
	AspectRatio   string   `json:"aspect_ratio"`
	Constraints   []string `json:"constraints,omitempty"`
}

// BuildSceneSpec 从风格设置构造场景描述。
func BuildSceneSpec(style entity.StyleSettings) SceneSpec {
	spec := SceneSpec{
		Subject:     "professional headshot of SUBJECT1, matching the labeled reference selfies",
		AspectRatio: ResolveAspectRatio(style.FormatWidth, style.FormatHeight),
		Constraints: []string{
			"preserve the facial identity from the reference selfies exactly",
			"business-appropriate appearance, natural skin texture",
			"no text or watermarks in the output",
		},
	}

	switch style.Package {
	case entity.StylePackageStudio:
		if style.Studio != nil {
			spec.Environment = "photo studio"
			spec.BackdropColor = style.Studio.BackdropColor
			spec.Lighting = style.Studio.Lighting
			spec.Outfit = style.Studio.Outfit
		}
	case entity.StylePackageEnvironmental:
		if style.Environmental != nil {
			spec.Environment = style.Environmental.Environment
			spec.SceneDetails = style.Environmental.SceneDescription
			spec.Branding = style.Environmental.Branding
		}
	case entity.StylePackageCustom:
		spec.Environment = "the provided background reference image"
		if style.Custom != nil {
			spec.Branding = style.Custom.Branding
		}
		spec.Constraints = append(spec.Constraints, "place the subject naturally in front of the background reference")
	}

	return spec
}

// Instruction 将场景描述序列化为指令文本，结构化负载嵌入其后。
func (s SceneSpec) Instruction() (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal scene spec: %w", err)
	}

	var b strings.Builder
	b.WriteString("Generate a ")
	b.WriteString(s.AspectRatio)
	b.WriteString(" professional headshot following the scene specification below. ")
	b.WriteString("The labeled reference sheet shows the subject's face from several angles; reproduce that person faithfully.\n\n")
	b.WriteString("SCENE SPECIFICATION (JSON):\n")
	b.Write(payload)
	return b.String(), nil
}

// EnvironmentInstruction 生成“只要场景、不要人物”的背景生成指令，
// 供品牌化背景步骤使用。
func (s SceneSpec) EnvironmentInstruction() (string, error) {
	background := s
	background.Subject = "empty professional environment, no people"
	background.Constraints = []string{
		"no people in the scene",
		"leave natural space in the composition for a person to be added later",
	}

	payload, err := json.Marshal(background)
	if err != nil {
		return "", fmt.Errorf("marshal scene spec: %w", err)
	}

	var b strings.Builder
	b.WriteString("Generate a ")
	b.WriteString(s.AspectRatio)
	b.WriteString(" background scene following the specification below.\n\n")
	b.WriteString("SCENE SPECIFICATION (JSON):\n")
	b.Write(payload)
	return b.String(), nil
}
