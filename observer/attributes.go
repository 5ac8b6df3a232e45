package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for knowledge base metrics.
var (
	AttrModel    = attribute.Key("embed.model")
	AttrProvider = attribute.Key("embed.provider")
	AttrPurpose  = attribute.Key("embed.purpose")
	AttrStatus   = attribute.Key("status")
)
