package navigation

import "sort"

// Route is a screen the client router can show.
type Route struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Tab   bool   `json:"tab"`
}

// InitialRoute is where a fresh client starts.
const InitialRoute = "WelcomeScreen"

var routes = map[string]Route{
	"HomeScreen":               {Name: "HomeScreen", Title: "Home", Tab: true},
	"ProfileScreen":            {Name: "ProfileScreen", Title: "Profile", Tab: true},
	"WelcomeScreen":            {Name: "WelcomeScreen", Title: "Welcome"},
	"AuthScreen":               {Name: "AuthScreen", Title: "Sign in"},
	"VoiceControlModal":        {Name: "VoiceControlModal", Title: "Voice control"},
	"EssentialServicesScreen":  {Name: "EssentialServicesScreen", Title: "Essential services"},
	"ServiceMapScreen":         {Name: "ServiceMapScreen", Title: "Service map"},
	"ReportFlow":               {Name: "ReportFlow", Title: "Report an issue"},
	"ReportFormScreen":         {Name: "ReportFormScreen", Title: "Report form"},
	"ReportConfirmationScreen": {Name: "ReportConfirmationScreen", Title: "Report submitted"},
	"ReportHistoryScreen":      {Name: "ReportHistoryScreen", Title: "Report history"},
	"CommunityHubScreen":       {Name: "CommunityHubScreen", Title: "Community hub"},
	"EventDetailScreen":        {Name: "EventDetailScreen", Title: "Event detail"},
	"DigitalLiteracyScreen":    {Name: "DigitalLiteracyScreen", Title: "Digital literacy"},
	"SettingsScreen":           {Name: "SettingsScreen", Title: "Settings"},
	"AppearanceSettingsScreen": {Name: "AppearanceSettingsScreen", Title: "Appearance"},
	"LanguageSettingsScreen":   {Name: "LanguageSettingsScreen", Title: "Language"},
}

// Known reports whether destination names a registered route.
func Known(destination string) bool {
	_, ok := routes[destination]
	return ok
}

// Routes lists every route, tabs first, then by name.
func Routes() []Route {
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tab != out[j].Tab {
			return out[i].Tab
		}
		return out[i].Name < out[j].Name
	})
	return out
}
