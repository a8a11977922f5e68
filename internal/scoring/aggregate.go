package scoring

// Mean averages the defined values; it is undefined when none are defined.
func Mean(vals ...Value) Value {
	sum, n := 0.0, 0
	for _, v := range vals {
		if !v.Valid {
			continue
		}
		sum += v.Float
		n++
	}
	if n == 0 {
		return Value{}
	}
	return Some(sum / float64(n))
}

// GroupAverage parses a group of raw compliance values and averages the ones
// that parse. Unparseable and empty entries are skipped.
func GroupAverage(raw []string) Value {
	vals := make([]Value, 0, len(raw))
	for _, r := range raw {
		vals = append(vals, ParseCompliance(r))
	}
	return Mean(vals...)
}

// Result is the full scoring outcome for one evaluation.
type Result struct {
	BehaviorAvg  Value
	ObjectiveAvg Value
	Score        Value // 1–5 scale
	Equivalent   Value // 0–120 scale
	Level        Level
}

// Evaluate scores an evaluation from its behavior and objective responses.
// The two group means are combined unweighted; catalog weights do not apply.
func Evaluate(behaviors, objectives []string) Result {
	r := Result{
		BehaviorAvg:  GroupAverage(behaviors),
		ObjectiveAvg: GroupAverage(objectives),
	}
	r.Score = Mean(r.BehaviorAvg, r.ObjectiveAvg)
	r.Equivalent = Equivalent(r.Score)
	r.Level = Classify(r.Equivalent)
	return r
}
