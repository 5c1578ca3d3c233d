package analysis

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"pockeat/internal/nutrition"
)

var errNoJSON = errors.New("no JSON found in response")

var (
	fencedBlock = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	jsonSpan    = regexp.MustCompile(`(\{[\s\S]*\}|\[[\s\S]*\])`)
	numberChars = regexp.MustCompile(`[^0-9.\-]`)
)

var lineComment = regexp.MustCompile(`(?m)^\s*//.*$`)

// Applied in order by RepairJSON after unclosed brackets are closed.
var repairs = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`'([^'"]*)'\s*:`), `"$1":`},
	{regexp.MustCompile(`:\s*'([^'"]*)'`), `: "$1"`},
	{regexp.MustCompile(`,\s*\}`), "}"},
	{regexp.MustCompile(`,\s*\]`), "]"},
	{regexp.MustCompile(`\}\s*\{`), "}, {"},
	{regexp.MustCompile(`"(\s*\n\s*)"`), `",$1"`},
	{regexp.MustCompile(`([0-9}\]]|true|false|null)(\s*\n\s*)"`), `$1,$2"`},
	{regexp.MustCompile(`::+`), ":"},
}

// ExtractJSON finds the JSON payload in a model response. A fenced code
// block wins; otherwise the widest {...} or [...] span is used.
func ExtractJSON(text string) (string, bool) {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := jsonSpan.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

// RepairJSON fixes the mistakes models most often make when emitting JSON.
// Comment lines go first so brackets inside them are not counted.
func RepairJSON(s string) string {
	fixed := closeBrackets(lineComment.ReplaceAllString(s, ""))
	for _, r := range repairs {
		fixed = r.re.ReplaceAllString(fixed, r.repl)
	}
	return fixed
}

// closeBrackets appends the closers for any brackets (and string) left open.
func closeBrackets(s string) string {
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if n := len(stack); n > 0 && ((c == '}' && stack[n-1] == '{') || (c == ']' && stack[n-1] == '[')) {
				stack = stack[:n-1]
			}
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// parseModelJSON extracts and parses the JSON object in a model response.
// It returns errNoJSON when the response contains no JSON at all and a
// KindParsing error when the JSON cannot be repaired.
func parseModelJSON(text string) (gjson.Result, error) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return gjson.Result{}, errNoJSON
	}

	var data gjson.Result
	switch {
	case gjson.Valid(raw):
		data = gjson.Parse(raw)
	case gjson.Valid(RepairJSON(raw)):
		data = gjson.Parse(RepairJSON(raw))
	default:
		return gjson.Result{}, parsingError("invalid JSON", raw)
	}

	if data.IsArray() {
		for _, item := range data.Array() {
			if item.IsObject() {
				return item, nil
			}
		}
	}
	if !data.IsObject() {
		return gjson.Result{}, parsingError("expected a JSON object", raw)
	}
	return data, nil
}

// number reads a numeric field, accepting numbers encoded as strings with units.
func number(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number:
		return r.Num
	case gjson.String:
		cleaned := numberChars.ReplaceAllString(normalizeCommas(r.Str), "")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// normalizeCommas drops thousands separators ("1,200") and turns any other
// comma into a decimal point ("12,5").
func normalizeCommas(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			b.WriteByte(s[i])
			continue
		}
		if !thousandsSeparator(s, i) {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// thousandsSeparator reports whether the comma at i sits after a digit and is
// followed by exactly three digits.
func thousandsSeparator(s string, i int) bool {
	if i == 0 || i+3 >= len(s) || !isDigit(s[i-1]) {
		return false
	}
	for j := i + 1; j <= i+3; j++ {
		if !isDigit(s[j]) {
			return false
		}
	}
	return i+4 == len(s) || !isDigit(s[i+4])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func stringOr(r gjson.Result, fallback string) string {
	if !r.Exists() || r.Type == gjson.Null {
		return fallback
	}
	if s := strings.TrimSpace(r.String()); s != "" {
		return s
	}
	return fallback
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseFoodResponse converts a model response into a food analysis.
// A response without any JSON yields an error result rather than an error.
func parseFoodResponse(text, defaultFoodName string) (*nutrition.FoodAnalysisResult, error) {
	data, err := parseModelJSON(text)
	if errors.Is(err, errNoJSON) {
		return nutrition.NewFoodErrorResult(defaultFoodName, "Failed to parse response: "+truncate(text, 100)+"..."), nil
	}
	if err != nil {
		return nil, err
	}

	result := nutrition.NewFoodErrorResult(stringOr(data.Get("food_name"), defaultFoodName), "")

	for _, ing := range data.Get("ingredients").Array() {
		if !ing.IsObject() {
			continue
		}
		result.Ingredients = append(result.Ingredients, nutrition.Ingredient{
			Name:     stringOr(ing.Get("name"), "Unknown ingredient"),
			Servings: number(ing.Get("servings")),
		})
	}

	if n := data.Get("nutrition_info"); n.IsObject() {
		info := &result.NutritionInfo
		info.Calories = number(n.Get("calories"))
		info.Protein = number(n.Get("protein"))
		info.Carbs = number(n.Get("carbs"))
		info.Fat = number(n.Get("fat"))
		info.SaturatedFat = number(n.Get("saturated_fat"))
		info.Sodium = number(n.Get("sodium"))
		info.Fiber = number(n.Get("fiber"))
		info.Sugar = number(n.Get("sugar"))
		info.Cholesterol = number(n.Get("cholesterol"))
		info.NutritionDensity = number(n.Get("nutrition_density"))
		n.Get("vitamins_and_minerals").ForEach(func(key, value gjson.Result) bool {
			info.VitaminsAndMinerals[key.String()] = number(value)
			return true
		})
	}

	for _, w := range data.Get("warnings").Array() {
		if s := strings.TrimSpace(w.String()); s != "" {
			result.Warnings = append(result.Warnings, s)
		}
	}

	if hs := data.Get("health_score"); hs.Exists() && hs.Type != gjson.Null {
		score := number(hs)
		result.HealthScore = &score
	}

	if e := data.Get("error"); e.Exists() && e.Type != gjson.Null {
		result.Error = e.String()
	}

	result.AddStandardWarnings()
	return result, nil
}

// parseExerciseResponse converts a model response into an exercise analysis.
func parseExerciseResponse(text string) (*nutrition.ExerciseAnalysisResult, error) {
	data, err := parseModelJSON(text)
	if errors.Is(err, errNoJSON) {
		return nutrition.NewExerciseErrorResult("Failed to parse response: " + truncate(text, 100) + "..."), nil
	}
	if err != nil {
		return nil, err
	}

	result := &nutrition.ExerciseAnalysisResult{
		ExerciseType:   stringOr(data.Get("exercise_type"), "unknown"),
		CaloriesBurned: number(data.Get("calories_burned")),
		Duration:       stringOr(data.Get("duration"), "unknown"),
		Intensity:      nutrition.NormalizeIntensity(data.Get("intensity").String()),
		METValue:       number(data.Get("met_value")),
	}
	if e := data.Get("error"); e.Exists() && e.Type != gjson.Null {
		result.Error = e.String()
	}
	return result, nil
}
