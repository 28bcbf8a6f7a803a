package workflow

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/mvh70/teamshots-sub010/internal/entity"
)

func TestBuildSceneSpecStudio(t *testing.T) {
	style := entity.StyleSettings{
		Package:      entity.StylePackageStudio,
		Studio:       &entity.StudioStyle{BackdropColor: "light gray", Lighting: "soft box", Outfit: "navy suit"},
		FormatWidth:  1080,
		FormatHeight: 1920,
	}

	spec := BuildSceneSpec(style)
	if spec.Environment != "photo studio" {
		t.Fatalf("environment = %q, want photo studio", spec.Environment)
	}
	if spec.BackdropColor != "light gray" || spec.Lighting != "soft box" || spec.Outfit != "navy suit" {
		t.Fatalf("studio fields not carried over: %+v", spec)
	}
	if spec.AspectRatio != "9:16" {
		t.Fatalf("aspect ratio = %q, want 9:16", spec.AspectRatio)
	}
}

func TestBuildSceneSpecCustomAddsPlacementConstraint(t *testing.T) {
	style := entity.StyleSettings{
		Package: entity.StylePackageCustom,
		Custom:  &entity.CustomBackgroundStyle{BackgroundKey: "backgrounds/office.png", Branding: true},
	}

	spec := BuildSceneSpec(style)
	if !spec.Branding {
		t.Fatal("branding flag not carried over")
	}
	found := false
	for _, c := range spec.Constraints {
		if strings.Contains(c, "background reference") {
			found = true
		}
	}
	if !found {
		t.Fatalf("placement constraint missing: %v", spec.Constraints)
	}
}

func TestInstructionEmbedsStructuredPayload(t *testing.T) {
	style := entity.StyleSettings{
		Package:       entity.StylePackageEnvironmental,
		Environmental: &entity.EnvironmentalStyle{Environment: "modern office lobby", SceneDescription: "glass walls"},
	}
	spec := BuildSceneSpec(style)

	instruction, err := spec.Instruction()
	if err != nil {
		t.Fatalf("Instruction: %v", err)
	}

	marker := "SCENE SPECIFICATION (JSON):\n"
	idx := strings.Index(instruction, marker)
	if idx < 0 {
		t.Fatalf("structured payload marker missing in %q", instruction)
	}

	var decoded SceneSpec
	if err := json.Unmarshal([]byte(instruction[idx+len(marker):]), &decoded); err != nil {
		t.Fatalf("embedded payload is not valid JSON: %v", err)
	}
	if decoded.Environment != "modern office lobby" {
		t.Fatalf("decoded environment = %q", decoded.Environment)
	}
	if decoded.SceneDetails != "glass walls" {
		t.Fatalf("decoded scene details = %q", decoded.SceneDetails)
	}
}

func TestEnvironmentInstructionExcludesPeople(t *testing.T) {
	style := entity.StyleSettings{
		Package:       entity.StylePackageEnvironmental,
		Environmental: &entity.EnvironmentalStyle{Environment: "rooftop terrace", Branding: true},
	}
	spec := BuildSceneSpec(style)

	instruction, err := spec.EnvironmentInstruction()
	if err != nil {
		t.Fatalf("EnvironmentInstruction: %v", err)
	}
	if !strings.Contains(instruction, "no people") {
		t.Fatalf("environment instruction must exclude people: %q", instruction)
	}
	if strings.Contains(instruction, "matching the labeled reference selfies") {
		t.Fatal("environment instruction must not mention the subject selfies")
	}
}
