package domain

// ChartBody is a single celestial body position within a birth chart.
type ChartBody struct {
	Name       string  `json:"name"`
	Sign       string  `json:"sign"`
	Position   float64 `json:"position"`
	Retrograde bool    `json:"retrograde"`
}

// ChartAspect is an angular relationship between two chart bodies.
type ChartAspect struct {
	Aspect string  `json:"aspect"`
	P1Name string  `json:"p1_name"`
	P2Name string  `json:"p2_name"`
	Orbit  float64 `json:"orbit"`
}

// ChartData is the structured astrological result returned by the upstream
// generator: body positions keyed by lowercase body name plus the raw
// aspect list. This is the payload cached on the profile record.
type ChartData struct {
	Data    map[string]ChartBody `json:"data"`
	Aspects []ChartAspect        `json:"aspects"`
}

// ChartArtifact is a complete generated chart: the structured data plus the
// rendered SVG image persisted to object storage.
type ChartArtifact struct {
	Data ChartData
	SVG  string
}
