package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvHTTPPort       = "HTTP_PORT"
	EnvModelPath      = "MODEL_PATH"
	EnvDataPath       = "DATA_PATH"
	EnvSessionTTL     = "SESSION_TTL"
	EnvMaxUploadBytes = "MAX_UPLOAD_BYTES"
	EnvProbThreshold  = "PROB_THRESHOLD"
	EnvDefaultLang    = "DEFAULT_LANG"
	EnvGenderColumn   = "GENDER_COLUMN"
	EnvGradeColumn    = "GRADE_COLUMN"
	EnvNameColumn     = "NAME_COLUMN"
	EnvDropColumns    = "DROP_COLUMNS"
	EnvMaxDisplay     = "MAX_DISPLAY"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvRequestTimeout = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultHTTPPort       = 8501
	DefaultModelPath      = "simpleml_model.json"
	DefaultDataPath       = "data"
	DefaultMaxUploadBytes = 10 << 20
	DefaultProbThreshold  = 0 // defer to the model artifact
	DefaultLang           = "en"
	DefaultGenderColumn   = "JANTINA"
	DefaultGradeColumn    = "GREDSPM"
	DefaultNameColumn     = "NAMA"
	DefaultMaxDisplay     = 20
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
)

// DefaultDropColumns are identifier and label columns never fed to the model.
var DefaultDropColumns = []string{"NAMA", "Name", "At_Risk", "Risk_Level"}

// Result table
const (
	RiskColumn     = "Risk_Level"
	LabelAtRisk    = "At Risk"
	LabelSafe      = "Safe"
	ResultFilename = "simpleml_predictions.csv"
	ResultMimeType = "text/csv"
)

// Supported display languages
const (
	LangEnglish = "en"
	LangMalay   = "ms"
)
