package hermes

const (
	SubjectPlanRequest   = "larder.plan.request"
	SubjectPlannerStats  = "larder.planner.stats"
	SubjectCatalogSynced = "larder.catalog.synced"

	StreamName   = "LARDER_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectPlanBuilt(planID string) string      { return "larder.plan." + planID + ".built" }
func SubjectPlanSolved(planID string) string     { return "larder.plan." + planID + ".solved" }
func SubjectPlanInfeasible(planID string) string { return "larder.plan." + planID + ".infeasible" }
func SubjectPlanFailed(planID string) string     { return "larder.plan." + planID + ".failed" }

func SubjectRecipeUpserted(recipeID string) string { return "larder.recipe." + recipeID + ".upserted" }
func SubjectRecipeDeleted(recipeID string) string  { return "larder.recipe." + recipeID + ".deleted" }
