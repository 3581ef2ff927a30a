package instagram

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

const (
	// BaseURL is the base URL for Instagram.
	BaseURL = "https://www.instagram.com"

	// GraphQLEndpoint receives the form-encoded timeline queries.
	GraphQLEndpoint = "/graphql/query"

	// TimelineDocID identifies the profile-posts relay query.
	TimelineDocID = "30714410208142251"

	// AppID is sent as X-IG-App-ID on every request.
	AppID = "936619743392459"

	// DefaultPageSize is the number of posts requested per page.
	DefaultPageSize = 12

	// timelineFriendlyName is the relay query name sent with each page request.
	timelineFriendlyName = "PolarisProfilePostsTabContentQuery_connection"

	// fallbackDTSG is used when the token cannot be scraped from the
	// profile page. Known to be accepted for anonymous-shaped requests.
	fallbackDTSG = "NAftyF_1mkGDTmQ3T2UX_zP8C9tmpc3h3b5DguTZlumI0VqB9hHdwoQ:17843669410156967:1753514249"
)

// dtsgPatterns locate the fb_dtsg form token in the profile page HTML.
var dtsgPatterns = []string{
	`"DTSGInitialData",\[\],{"token":"([^"]+)"`,
	`fb_dtsg[^"]*"([^"]+)"`,
}

// ProfileURL returns the profile page URL for a user under base.
func ProfileURL(base, username string) string {
	return base + "/" + username + "/"
}

// GraphQLURL returns the endpoint receiving timeline queries under base.
func GraphQLURL(base string) string {
	return base + GraphQLEndpoint
}

// TimelineVariables builds the relay variables JSON for one page request.
// after is the opaque cursor from the previous page, empty for the first.
func TimelineVariables(username, after string, count int) string {
	if count <= 0 {
		count = DefaultPageSize
	}

	variables := map[string]interface{}{
		"data": map[string]interface{}{
			"count":                                 count,
			"include_reel_media_seen_timestamp":     true,
			"include_relationship_info":             true,
			"latest_besties_reel_media":             true,
			"latest_reel_media":                     true,
		},
		"first":    count,
		"username": username,
		"__relay_internal__pv__PolarisIsLoggedInrelayprovider":   true,
		"__relay_internal__pv__PolarisShareSheetV3relayprovider": true,
		"before": nil,
		"last":   nil,
	}
	if after != "" {
		variables["after"] = after
	} else {
		variables["after"] = nil
	}

	data, _ := json.Marshal(variables)
	return string(data)
}

// TimelineForm builds the form payload for one timeline page request.
func TimelineForm(username, after, fbDTSG string, count int) url.Values {
	form := url.Values{}
	form.Set("__d", "www")
	form.Set("__user", "0")
	form.Set("__a", "1")
	form.Set("__comet_req", "7")
	form.Set("fb_dtsg", fbDTSG)
	form.Set("__spin_t", strconv.FormatInt(time.Now().Unix(), 10))
	form.Set("fb_api_caller_class", "RelayModern")
	form.Set("fb_api_req_friendly_name", timelineFriendlyName)
	form.Set("variables", TimelineVariables(username, after, count))
	form.Set("server_timestamps", "true")
	form.Set("doc_id", TimelineDocID)
	return form
}

// IsValidUsername checks a username against Instagram's naming rules.
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}

	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}

	return true
}

// SanitizeUsername strips the leading @ and trailing slashes or spaces.
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}

	if username[0] == '@' {
		username = username[1:]
	}

	for len(username) > 0 && (username[len(username)-1] == '/' || username[len(username)-1] == ' ') {
		username = username[:len(username)-1]
	}

	return username
}
