package nutrition

import "math"

// Round1 rounds half away from zero to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ItemCalories converts a quantity and a per-100 g energy value into the
// calories of one item, rounded to 0.1 kcal and floored at zero.
func ItemCalories(quantityGrams, kcalPer100g float64) float64 {
	return floorZero(Round1(quantityGrams * kcalPer100g / 100))
}

// TotalCalories sums per-item calories. An empty list totals zero.
func TotalCalories(itemCalories ...float64) float64 {
	var sum float64
	for _, c := range itemCalories {
		sum += c
	}
	return floorZero(Round1(sum))
}

func floorZero(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return v
}
