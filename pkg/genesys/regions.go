package genesys

// DefaultRegion is used when a region is unknown.
const DefaultRegion = "us-east-1"

var loginHosts = map[string]string{
	"us-east-1":      "https://login.mypurecloud.com",
	"us-east-2":      "https://login.use2.pure.cloud",
	"us-west-2":      "https://login.usw2.pure.cloud",
	"us-west":        "https://login.usw2.pure.cloud",
	"ca-central-1":   "https://login.cac1.pure.cloud",
	"sa-east-1":      "https://login.sae1.pure.cloud",
	"eu-west-1":      "https://login.mypurecloud.ie",
	"eu-west-2":      "https://login.euw2.pure.cloud",
	"eu-central-1":   "https://login.mypurecloud.de",
	"ap-southeast-2": "https://login.mypurecloud.com.au",
	"ap-northeast-1": "https://login.mypurecloud.jp",
	"ap-northeast-2": "https://login.apne2.pure.cloud",
	"ap-south-1":     "https://login.aps1.pure.cloud",
}

var apiHosts = map[string]string{
	"us-east-1":      "https://api.mypurecloud.com",
	"us-east-2":      "https://api.use2.pure.cloud",
	"us-west-2":      "https://api.usw2.pure.cloud",
	"us-west":        "https://api.usw2.pure.cloud",
	"ca-central-1":   "https://api.cac1.pure.cloud",
	"sa-east-1":      "https://api.sae1.pure.cloud",
	"eu-west-1":      "https://api.mypurecloud.ie",
	"eu-west-2":      "https://api.euw2.pure.cloud",
	"eu-central-1":   "https://api.mypurecloud.de",
	"ap-southeast-2": "https://api.mypurecloud.com.au",
	"ap-northeast-1": "https://api.mypurecloud.jp",
	"ap-northeast-2": "https://api.apne2.pure.cloud",
	"ap-south-1":     "https://api.aps1.pure.cloud",
}

// LoginURL returns the OAuth host for a region.
func LoginURL(region string) string {
	if u, ok := loginHosts[region]; ok {
		return u
	}
	return loginHosts[DefaultRegion]
}

// APIURL returns the REST API host for a region.
func APIURL(region string) string {
	if u, ok := apiHosts[region]; ok {
		return u
	}
	return apiHosts[DefaultRegion]
}

// KnownRegion reports whether region has its own hosts.
func KnownRegion(region string) bool {
	_, ok := apiHosts[region]
	return ok
}
