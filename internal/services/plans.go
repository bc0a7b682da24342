package services

import "genstudio/internal/models"

var plans = []models.Plan{
	{ID: "free", Name: "Découverte", PriceCents: 0, Currency: "EUR", GenerationsLimit: 10},
	{ID: "pro", Name: "Pro", PriceCents: 1900, Currency: "EUR", GenerationsLimit: 200},
	{ID: "business", Name: "Business", PriceCents: 4900, Currency: "EUR", GenerationsLimit: 0},
}

// Plans lists the subscription plans. A zero limit means unlimited.
func Plans() []models.Plan {
	out := make([]models.Plan, len(plans))
	copy(out, plans)
	return out
}

// DefaultPlan is the plan new AI accounts start on.
func DefaultPlan() models.Plan {
	return plans[0]
}
