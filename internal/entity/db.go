package entity

// Re-export common types from the common package for backward compatibility.

import (
	"github.com/mvh70/teamshots-sub010/internal/entity/common"
)

// Type aliases for common types
type StringArray = common.StringArray
type JSONMap = common.JSONMap
type Response = common.Response
type ResponseItems = common.ResponseItems
type Meta = common.Meta
type BaseParams = common.BaseParams
