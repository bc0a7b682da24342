package wizard

import "genstudio/internal/models"

// Question is a workflow question asked for some functions.
type Question struct {
	ID       string
	Label    string
	Options  []string
	Required bool
}

// Function is something a job can produce.
type Function struct {
	Label     string
	Category  models.Category
	Questions []Question
}

type Job struct {
	Name      string
	Functions []Function
}

// Catalog lists the jobs, their functions and the image styles offered by
// the wizard.
type Catalog struct {
	Jobs   []Job
	Styles []string
}

// Job looks a job up by name.
func (c *Catalog) Job(name string) (*Job, bool) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], true
		}
	}
	return nil, false
}

// Function looks up a function allowed for job.
func (c *Catalog) Function(job, label string) (*Function, bool) {
	j, ok := c.Job(job)
	if !ok {
		return nil, false
	}
	for i := range j.Functions {
		if j.Functions[i].Label == label {
			return &j.Functions[i], true
		}
	}
	return nil, false
}

func (c *Catalog) HasStyle(style string) bool {
	for _, s := range c.Styles {
		if s == style {
			return true
		}
	}
	return false
}

// DefaultCatalog is the catalog shipped with the app.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Jobs: []Job{
			{
				Name: "Restaurant",
				Functions: []Function{
					{
						Label:    "Menu",
						Category: models.CategoryDocument,
						Questions: []Question{
							{ID: "cuisine", Label: "Type de cuisine", Required: true},
							{ID: "price_range", Label: "Gamme de prix", Options: []string{"€", "€€", "€€€"}, Required: true},
						},
					},
					{Label: "Affiche promotionnelle", Category: models.CategoryImage},
					{Label: "Post Instagram", Category: models.CategorySocial},
					{Label: "Description", Category: models.CategoryText},
				},
			},
			{
				Name: "Coiffeur",
				Functions: []Function{
					{Label: "Flyer", Category: models.CategoryImage},
					{
						Label:    "Grille tarifaire",
						Category: models.CategoryDocument,
						Questions: []Question{
							{ID: "services", Label: "Prestations proposées", Required: true},
						},
					},
					{Label: "Post réseaux sociaux", Category: models.CategorySocial},
					{Label: "Bio du salon", Category: models.CategoryText},
				},
			},
			{
				Name: "Immobilier",
				Functions: []Function{
					{
						Label:    "Annonce",
						Category: models.CategoryText,
						Questions: []Question{
							{ID: "property_type", Label: "Type de bien", Options: []string{"Appartement", "Maison", "Local commercial"}, Required: true},
							{ID: "surface", Label: "Surface (m²)", Required: true},
							{ID: "rooms", Label: "Nombre de pièces"},
						},
					},
					{Label: "Visuel du bien", Category: models.CategoryImage},
					{Label: "Brochure", Category: models.CategoryDocument},
				},
			},
			{
				Name: "Autre",
				Functions: []Function{
					{Label: "Texte libre", Category: models.CategoryText},
					{Label: "Image", Category: models.CategoryImage},
					{Label: "Document", Category: models.CategoryDocument},
					{Label: "Post réseaux sociaux", Category: models.CategorySocial},
				},
			},
		},
		Styles: []string{
			"Réaliste",
			"Illustration",
			"Minimaliste",
			"Aquarelle",
			"3D",
			"Pop art",
		},
	}
}
