package domain

// UserProfile is a user's natal-data record together with the chart cache
// pointer fields. The three Chart* fields are either all set or all empty;
// a cache hit requires all three.
type UserProfile struct {
	UserID        string
	FirstName     string
	LastName      string
	BirthDate     string // "1990-01-15"
	BirthTime     string // "14:30"
	BirthLocation string // "New York, NY"
	BirthCountry  string // "United States"
	ZodiacSign    string

	ChartS3Path      string
	ChartGeneratedAt int64  // epoch seconds
	ChartDataCached  string // JSON text of ChartData
}

// FullName joins the profile names, defaulting to "User" when both are empty.
func (p UserProfile) FullName() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name == "" {
		return "User"
	}
	return name
}
