package models

// Classification es el resultado de la clasificación; cada etiqueta pertenece al vocabulario
type Classification struct {
	Category     []string `json:"category"`
	Type         []string `json:"type"`
	SoftCategory []string `json:"softCategory"`

	// Degraded marca un resultado vacío por fallo del proveedor o de la respuesta,
	// no por ausencia de etiquetas aplicables. Un resultado degradado no se persiste.
	Degraded bool `json:"-"`
}

// EmptyClassification es el resultado degradado ante cualquier fallo
func EmptyClassification() Classification {
	return Classification{
		Category:     []string{},
		Type:         []string{},
		SoftCategory: []string{},
	}
}

// DegradedClassification es el resultado vacío que reporta un fallo
func DegradedClassification() Classification {
	c := EmptyClassification()
	c.Degraded = true
	return c
}

// IsEmpty indica si no se asignó ninguna etiqueta
func (c Classification) IsEmpty() bool {
	return len(c.Category) == 0 && len(c.Type) == 0 && len(c.SoftCategory) == 0
}

// Vocabulary son las listas cerradas de etiquetas definidas por la tienda
type Vocabulary struct {
	Categories     []string `json:"categories" yaml:"categories"`
	Types          []string `json:"types" yaml:"types"`
	SoftCategories []string `json:"softCategories" yaml:"soft_categories"`
}

// LabelState distingue un campo ausente de uno vacío.
// Unset (ausente o null) y Empty ([]) son estados distintos: Empty significa
// "clasificado como ninguna de las opciones".
type LabelState int

const (
	LabelUnset LabelState = iota
	LabelEmpty
	LabelSet
)

func (s LabelState) String() string {
	switch s {
	case LabelUnset:
		return "unset"
	case LabelEmpty:
		return "empty"
	default:
		return "set"
	}
}

// LabelStateOf calcula el estado de un campo de etiquetas decodificado
func LabelStateOf(labels []string) LabelState {
	if labels == nil {
		return LabelUnset
	}
	if len(labels) == 0 {
		return LabelEmpty
	}
	return LabelSet
}
