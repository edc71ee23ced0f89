package category

// Seed defines a category for seeding the default tree.
type Seed struct {
	Title    string
	Children []Seed
}

// DefaultImageExt is the extension given to seeded image refs.
const DefaultImageExt = ".jpg"

// maxImageRef mirrors the stored limit on image refs.
const maxImageRef = 37

// DefaultCategories is the default category hierarchy.
// Librarians can customize this after initial setup.
var DefaultCategories = []Seed{
	{
		Title: "Fiction",
		Children: []Seed{
			{
				Title: "Fantasy",
				Children: []Seed{
					{Title: "Epic Fantasy"},
					{Title: "Urban Fantasy"},
					{Title: "Fairy Tale Retelling"},
				},
			},
			{
				Title: "Science Fiction",
				Children: []Seed{
					{Title: "Space Opera"},
					{Title: "Cyberpunk"},
					{Title: "Time Travel"},
					{Title: "Dystopian"},
				},
			},
			{
				Title: "Mystery & Thriller",
				Children: []Seed{
					{Title: "Cozy Mystery"},
					{Title: "Police Procedural"},
					{Title: "Espionage"},
				},
			},
			{Title: "Romance"},
			{Title: "Horror"},
			{Title: "Historical Fiction"},
			{Title: "Literary Fiction"},
		},
	},
	{
		Title: "Nonfiction",
		Children: []Seed{
			{Title: "Biography & Memoir"},
			{
				Title: "History",
				Children: []Seed{
					{Title: "Ancient History"},
					{Title: "Military History"},
				},
			},
			{
				Title: "Science & Nature",
				Children: []Seed{
					{Title: "Physics"},
					{Title: "Biology"},
					{Title: "Astronomy"},
				},
			},
			{Title: "Philosophy"},
			{Title: "Travel"},
			{Title: "Cooking & Food"},
			{Title: "Technology"},
		},
	},
	{
		Title: "Children's & Young Adult",
		Children: []Seed{
			{Title: "Picture Books"},
			{Title: "Middle Grade"},
			{Title: "Young Adult"},
		},
	},
	{Title: "Poetry"},
	{Title: "Reference"},
}

// Walk visits every seed depth first, parents before their children.
// parent is nil for top-level seeds. Walk stops at the first error.
func Walk(seeds []Seed, fn func(s Seed, parent *Seed) error) error {
	return walk(seeds, nil, fn)
}

func walk(seeds []Seed, parent *Seed, fn func(Seed, *Seed) error) error {
	for i := range seeds {
		if err := fn(seeds[i], parent); err != nil {
			return err
		}
		if err := walk(seeds[i].Children, &seeds[i], fn); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of seeds in the tree.
func Count(seeds []Seed) int {
	n := 0
	_ = Walk(seeds, func(Seed, *Seed) error {
		n++
		return nil
	})
	return n
}

// DefaultImageRef returns the placeholder image name for a seeded category:
// "science-fiction.jpg" for "Science Fiction".
func DefaultImageRef(title string) string {
	slug := Slug(title, maxImageRef-len(DefaultImageExt))
	if slug == "" {
		slug = "category"
	}
	return slug + DefaultImageExt
}

// SampleBook is a demo book filed under a default category.
type SampleBook struct {
	Title    string
	Category string
}

// SampleBooks fill a fresh catalog with something to browse.
var SampleBooks = []SampleBook{
	{Title: "Dune", Category: "Science Fiction"},
	{Title: "Hyperion", Category: "Space Opera"},
	{Title: "Neuromancer", Category: "Cyberpunk"},
	{Title: "The Name of the Wind", Category: "Epic Fantasy"},
	{Title: "The Thursday Murder Club", Category: "Cozy Mystery"},
	{Title: "Sapiens", Category: "History"},
	{Title: "A Brief History of Time", Category: "Physics"},
	{Title: "Where the Wild Things Are", Category: "Picture Books"},
}
