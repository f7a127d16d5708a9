package shotstore

// Shot is one persisted extraction (§3.4).
type Shot struct {
	ID                 int64
	UUID                string
	Timestamp           int64
	ProfileName         string
	ProfileJSON         string
	BeverageType        string
	DurationSeconds     float64
	FinalYieldGrams     float64
	DoseGrams           float64
	TDS                 float64
	EY                  float64
	Enjoyment           int
	BeanBrand           string
	BeanType            string
	RoastDate           string
	RoastLevel          string
	GrinderModel        string
	GrinderSetting      string
	Barista             string
	EspressoNotes       string
	BeanNotes           string
	ProfileNotes        string
	TemperatureOverride *float64
	YieldOverride       *float64
	VisualizerID        *string
	VisualizerURL       *string
	DebugLog            *string
	Phases              []PhaseMarker
}

// PhaseMarker is one entry of a shot's phase-transition timeline (§3.4).
type PhaseMarker struct {
	TimeOffset      float64
	Label           string
	FrameNumber     int
	IsFlowMode      bool
	TransitionReason string // one of "weight","pressure","flow","time",""
}

// ShotSaveData is the plain value-type snapshot taken on the caller's
// goroutine before handing a shot off to a save worker (§4.4 "Save
// pipeline", step 1).
type ShotSaveData struct {
	UUID                string
	Timestamp           int64
	ProfileName         string
	ProfileJSON         string
	BeverageType        string
	DurationSeconds     float64
	FinalYieldGrams     float64
	DoseGrams           float64
	TDS                 float64
	EY                  float64
	Enjoyment           int
	BeanBrand           string
	BeanType            string
	RoastDate           string
	RoastLevel          string
	GrinderModel        string
	GrinderSetting      string
	Barista             string
	EspressoNotes       string
	BeanNotes           string
	ProfileNotes        string
	TemperatureOverride *float64
	YieldOverride       *float64
	VisualizerID        *string
	VisualizerURL       *string
	DebugLog            *string
	Phases              []PhaseMarker

	// CompressedSamples is the already zlib-compressed sample blob; it is
	// produced on the caller's goroutine because only the caller has
	// access to the live shot-data model (§4.4).
	CompressedSamples []byte
	SampleCount       int
}

// Filter describes a shot query (§4.4 "Query pipeline").
type Filter struct {
	BeanBrand    string
	BeanType     string
	ProfileName  string
	GrinderModel string
	BeverageType string
	MinEnjoyment int
	SearchText   string // free-text, matched via shots_fts

	SortColumn string // user-facing key, resolved through sortColumnWhitelist
	SortDesc   bool
}

// distinctColumnWhitelist is the closed set of columns get_distinct may
// target (§4.4 "Distinct-value cache").
var distinctColumnWhitelist = map[string]bool{
	"profile_name":    true,
	"bean_brand":      true,
	"bean_type":       true,
	"grinder_model":   true,
	"grinder_setting": true,
	"barista":         true,
	"roast_level":     true,
}

// sortColumnWhitelist maps user-facing sort keys to SQL expressions. This
// is the only place a Filter's SortColumn touches raw SQL, closing off
// injection through the sort parameter (§4.4).
var sortColumnWhitelist = map[string]string{
	"timestamp":  "timestamp",
	"duration":   "duration_seconds",
	"yield":      "final_yield_grams",
	"dose":       "dose_grams",
	"tds":        "tds",
	"ey":         "ey",
	"enjoyment":  "enjoyment",
	"ratio":      "CASE WHEN dose_grams>0 THEN final_yield_grams/dose_grams ELSE 0 END",
	"bean_brand": "bean_brand",
	"profile":    "profile_name",
}
