package scoring

// Level is a performance tier on the 0–120 scale.
type Level int

const (
	LevelNoData Level = iota
	LevelNotAchieved
	LevelPartial
	LevelExpected
	LevelOutstanding
)

// Tier boundaries on the 0–120 scale. Each band includes its lower bound.
const (
	PartialFrom     = 80.0
	ExpectedFrom    = 96.0
	OutstandingFrom = 110.0
)

var levelNames = map[Level]string{
	LevelNoData:      "No data",
	LevelNotAchieved: "Not achieved",
	LevelPartial:     "Partially achieved",
	LevelExpected:    "Expected",
	LevelOutstanding: "Outstanding",
}

var levelColors = map[Level]string{
	LevelNoData:      "neutral",
	LevelNotAchieved: "red",
	LevelPartial:     "yellow",
	LevelExpected:    "green",
	LevelOutstanding: "blue",
}

func (l Level) String() string { return levelNames[l] }

// Color is the display tag for the tier.
func (l Level) Color() string { return levelColors[l] }

// Equivalent rescales a 1–5 score to 0–120.
func Equivalent(score Value) Value {
	if !score.Valid {
		return Value{}
	}
	return Some(score.Float / 5.0 * 120.0)
}

// Classify maps an equivalent score to its tier.
func Classify(equiv Value) Level {
	switch {
	case !equiv.Valid:
		return LevelNoData
	case equiv.Float < PartialFrom:
		return LevelNotAchieved
	case equiv.Float < ExpectedFrom:
		return LevelPartial
	case equiv.Float < OutstandingFrom:
		return LevelExpected
	default:
		return LevelOutstanding
	}
}
