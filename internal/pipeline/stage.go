package pipeline

// Stage is the position in the recognize → select → recommend flow.
type Stage int

const (
	StageEmpty Stage = iota
	StageImageUploaded
	StageIngredientsRecognized
	StageRecipesRecommended
)

func (s Stage) String() string {
	switch s {
	case StageImageUploaded:
		return "image_uploaded"
	case StageIngredientsRecognized:
		return "ingredients_recognized"
	case StageRecipesRecommended:
		return "recipes_recommended"
	default:
		return "empty"
	}
}
