package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"pockeat/internal/nutrition"
)

const foodSchema = `{
  "food_name": "string",
  "ingredients": [
    {
      "name": "string",
      "servings": number
    }
  ],
  "nutrition_info": {
    "calories": number,
    "protein": number,
    "carbs": number,
    "fat": number,
    "sodium": number,
    "fiber": number,
    "sugar": number
  },
  "warnings": ["string"]
}`

const foodWarningRules = `IMPORTANT: Do not include any comments, annotations or notes in the JSON. Do not use '#' or '//' characters. Only return valid JSON.
For the warnings array:
- Include "High sodium content" (exact text) if sodium exceeds 500mg
- Include "High sugar content" (exact text) if sugar exceeds 20g
If there are no warnings, you can include an empty array [] for warnings.`

const bmrInstructions = `For calorie calculations, use the Mifflin-St Jeor equation to first calculate BMR:
- For males: BMR = (10 × weight [kg]) + (6.25 × height [cm]) – (5 × age [years]) + 5
- For females: BMR = (10 × weight [kg]) + (6.25 × height [cm]) – (5 × age [years]) – 161

Then calculate calories burned as: (BMR / 24) × MET value × duration in hours`

func foodErrorSchema(message string) string {
	return fmt.Sprintf(`{
  "error": %q,
  "food_name": "Unknown",
  "ingredients": [],
  "nutrition_info": {
    "calories": 0,
    "protein": 0,
    "carbs": 0,
    "fat": 0,
    "sodium": 0,
    "fiber": 0,
    "sugar": 0
  },
  "warnings": []
}`, message)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FoodTextPrompt asks for an analysis of a free-text food description.
func FoodTextPrompt(description string) string {
	return fmt.Sprintf(`Analyze this food description: %q

Please analyze the ingredients and nutritional content based on this description.
If not described, assume a standard serving size and ingredients for 1 person only.

Provide a comprehensive analysis including:
- The name of the food
- A complete list of ingredients with servings composition (in grams) from portion estimation or standard serving size.
- Detailed macronutrition information ONLY of calories, protein, carbs, fat, sodium, fiber, and sugar.
- Add warnings if the food contains high sodium (>500mg) or high sugar (>20g).

Be very thorough: people rely on these numbers for their diet and health.

Return your response as a strict JSON object with this exact format:
%s

%s

If you cannot identify the food or analyze it properly, use this format:
%s`, description, foodSchema, foodWarningRules, foodErrorSchema("Description of the issue"))
}

// FoodImagePrompt asks for an analysis of the food visible in an attached image.
func FoodImagePrompt() string {
	return fmt.Sprintf(`You are a food recognition and nutrition analysis expert. Carefully analyze this image and identify any food or meal present.

Please look for:
- Prepared meals
- Individual food items
- Snacks
- Beverages
- Fruits and vegetables
- Packaged food products
- Amount of food items

Even if the image quality is not perfect or the food is partially visible, please do your best to identify it and provide an analysis.

For the identified food, provide a comprehensive analysis including:
- The specific name of the food
- A detailed list of likely ingredients with estimated servings composition in grams, based on size and portion.
- Detailed macronutrition information ONLY of calories, protein, carbs, fat, sodium, fiber, and sugar.
- Add warnings if the food contains high sodium (>500mg) or high sugar (>20g)

Return your response as a strict JSON object with this exact format:
%s

%s

If absolutely no food can be detected in the image, only then use this format:
%s`, foodSchema, foodWarningRules, foodErrorSchema("No food detected in image"))
}

// NutritionLabelPrompt asks for an analysis of a nutrition label photo scaled to servings.
func NutritionLabelPrompt(servings float64) string {
	return fmt.Sprintf(`Analyze this nutrition label image. The user will consume %s servings.

Please provide a comprehensive analysis including:
- The name of the food
- A complete list of ingredients with servings composition in grams
- Detailed macronutrition information ONLY of calories, protein, carbs, fat, sodium, fiber, and sugar.
- Add warnings if the food contains high sodium (>500mg) or high sugar (>20g)

Return your response as a strict JSON object with this exact format:
%s

%s

If no nutrition label is detected in the image or you cannot analyze it properly, use this format:
%s`, formatNumber(servings), foodSchema, foodWarningRules, foodErrorSchema("No nutrition label detected"))
}

// FoodCorrectionPrompt asks the model to amend a previous analysis from user feedback.
func FoodCorrectionPrompt(previous nutrition.FoodAnalysisResult, comment string) (string, error) {
	prev, err := json.MarshalIndent(struct {
		FoodName      string                  `json:"food_name"`
		Ingredients   []nutrition.Ingredient  `json:"ingredients"`
		NutritionInfo nutrition.NutritionInfo `json:"nutrition_info"`
		Warnings      []string                `json:"warnings"`
	}{previous.FoodName, previous.Ingredients, previous.NutritionInfo, previous.Warnings}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode previous result: %w", err)
	}

	return fmt.Sprintf(`You are a food nutrition expert tasked with correcting a food analysis based on user feedback.

ORIGINAL ANALYSIS:
%s

USER CORRECTION: %q

INSTRUCTIONS:
1. Carefully analyze the user's correction and determine what specific aspects need to be modified.
2. Consider these possible correction types:
   - Food identity correction (e.g., "this is chicken, not beef")
   - Ingredient additions/removals/adjustments (e.g., "there's no butter" or "add 15g of cheese")
   - Portion size adjustments (e.g., "this is a half portion")
   - Nutritional value corrections (e.g., "calories should be around 350")
   - Special dietary information (e.g., "this is a vegan version")
3. Only modify elements that need correction based on the user's feedback.
4. Keep all other values from the original analysis intact.
5. Maintain reasonable nutritional consistency (e.g., if calories increase, check if macros need adjustment).
6. For standard serving size, use common restaurant or cookbook portions for a single adult.

RESPONSE FORMAT:
Return a valid JSON object with exactly this structure:
%s

WARNING CRITERIA:
- Add "High sodium content" if sodium exceeds 500mg
- Add "High sugar content" if sugar exceeds 20g
- Use empty array [] if no warnings apply

IMPORTANT: Return only the JSON object with no additional text, comments, or explanations.`, prev, comment, foodSchema), nil
}

// NutritionLabelCorrectionPrompt amends a nutrition label analysis for the given servings.
func NutritionLabelCorrectionPrompt(previous nutrition.FoodAnalysisResult, comment string, servings float64) string {
	ingredients := make([]string, 0, len(previous.Ingredients))
	for _, ing := range previous.Ingredients {
		ingredients = append(ingredients, fmt.Sprintf("%s: %sg", ing.Name, formatNumber(ing.Servings)))
	}
	foodName := previous.FoodName
	if foodName == "" {
		foodName = "Unknown"
	}
	n := previous.NutritionInfo
	s := formatNumber(servings)

	var b strings.Builder
	fmt.Fprintf(&b, "Original nutrition label analysis (for %s servings):\n", s)
	fmt.Fprintf(&b, "- Food name: %s\n", foodName)
	fmt.Fprintf(&b, "- Ingredients: %s\n", strings.Join(ingredients, ", "))
	fmt.Fprintf(&b, "- Calories: %s\n", formatNumber(n.Calories))
	fmt.Fprintf(&b, "- Protein: %sg\n", formatNumber(n.Protein))
	fmt.Fprintf(&b, "- Carbs: %sg\n", formatNumber(n.Carbs))
	fmt.Fprintf(&b, "- Fat: %sg\n", formatNumber(n.Fat))
	fmt.Fprintf(&b, "- Sodium: %smg\n", formatNumber(n.Sodium))
	fmt.Fprintf(&b, "- Fiber: %sg\n", formatNumber(n.Fiber))
	fmt.Fprintf(&b, "- Sugar: %sg\n", formatNumber(n.Sugar))
	fmt.Fprintf(&b, "- Warnings: %s\n\n", strings.Join(previous.Warnings, ", "))
	fmt.Fprintf(&b, "User correction comment: %q\n\n", comment)
	b.WriteString(`Please correct and analyze the ingredients and nutritional content based on the user's feedback.
If not described, assume a standard serving size and ingredients for 1 person only.

Provide a comprehensive analysis including:
- The name of the food
- A complete list of ingredients with servings composition (in grams)
- Detailed macronutrition information ONLY of calories, protein, carbs, fat, sodium, fiber, and sugar.
- Add warnings if the food contains high sodium (>500mg) or high sugar (>20g)

Only modify values that need to be changed according to the user's feedback.
`)
	fmt.Fprintf(&b, "\nThe corrected analysis should be for %s servings.\n\n", s)
	fmt.Fprintf(&b, "Return your response as a strict JSON object with this exact format:\n%s\n\n%s", foodSchema, foodWarningRules)
	return b.String()
}

// HealthInfo renders the user's metrics for a prompt, or fallback when none are set.
func HealthInfo(m nutrition.HealthMetrics, fallback string) string {
	var parts []string
	if m.WeightKg != nil && *m.WeightKg > 0 {
		parts = append(parts, "Weight: "+formatNumber(*m.WeightKg)+" kg")
	}
	if m.HeightCm != nil && *m.HeightCm > 0 {
		parts = append(parts, "Height: "+formatNumber(*m.HeightCm)+" cm")
	}
	if m.Age != nil && *m.Age > 0 {
		parts = append(parts, "Age: "+strconv.Itoa(*m.Age)+" years")
	}
	if g := strings.TrimSpace(m.Gender); g != "" {
		parts = append(parts, "Gender: "+g)
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, ", ")
}

// ExercisePrompt asks for type, duration, intensity, MET and calories of an exercise.
func ExercisePrompt(description string, metrics nutrition.HealthMetrics) string {
	return fmt.Sprintf(`Analyze the following exercise description and provide detailed information.
First, evaluate if the description clearly mentions:
1. The type of exercise (what activity)
2. Duration of the exercise (how long)
3. Intensity of the exercise (how hard)

If ANY of these three elements are missing, return this error format:
{
  "error": "Error in describing exercise",
  "exercise_type": "unknown",
  "calories_burned": 0,
  "duration": "unknown",
  "intensity": "unknown",
  "met_value": 0.0
}

Otherwise, if all elements are present, return your response as a JSON object with this structure (choose exactly ONE intensity):
{
  "exercise_type": "Concise name of exercise based on description",
  "calories_burned": 0,
  "duration": "xx seconds/minutes/hours",
  "intensity": "Low/Medium/High",
  "met_value": 0.0
}

Exercise description: %s

User health data: %s

%s

Please identify the appropriate MET value for the exercise and include it in the response.`,
		description, HealthInfo(metrics, "Assume average adult metrics for calculations"), bmrInstructions)
}

// ExerciseCorrectionPrompt asks the model to amend a previous exercise analysis.
func ExerciseCorrectionPrompt(previous nutrition.ExerciseAnalysisResult, comment string, metrics nutrition.HealthMetrics) (string, error) {
	prev, err := json.MarshalIndent(struct {
		ExerciseType   string  `json:"exercise_type"`
		CaloriesBurned float64 `json:"calories_burned"`
		Duration       string  `json:"duration"`
		Intensity      string  `json:"intensity"`
		METValue       float64 `json:"met_value"`
		OriginalInput  string  `json:"original_input,omitempty"`
		Error          string  `json:"error,omitempty"`
	}{
		previous.ExerciseType, previous.CaloriesBurned, previous.Duration,
		previous.Intensity, previous.METValue, previous.OriginalInput, previous.Error,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode previous result: %w", err)
	}

	originalInput := previous.OriginalInput
	if originalInput == "" {
		originalInput = "Unknown"
	}

	return fmt.Sprintf(`I previously analyzed an exercise with description: %q

Here is the previous analysis:
%s

The user has provided this feedback to correct or improve the analysis:
%q

User health data: %s

Please correct the analysis based on this feedback. Return your corrected response as a complete JSON object with the same structure as the original analysis.
Estimate using a concrete proven formula to get the calories burned.
IMPORTANT: If the pace increases, you MUST INCREASE the MET. If the pace decreases, you MUST MAINTAIN the MET, UNLESS the user feedback explicitly mentions a different MET value.

IMPORTANT: When user feedback only mentions correcting one parameter (e.g., only duration or only distance):
- If only duration is corrected, assume the same distance as originally stated
- If only distance is corrected, assume the same duration as originally stated

%s

RETURN THE CORRECTED ANALYSIS JSON ONLY`,
		originalInput, prev, comment, HealthInfo(metrics, "No health metrics provided"), bmrInstructions), nil
}
