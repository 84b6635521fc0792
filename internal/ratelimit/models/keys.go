package models

// BucketKey namespaces a client's bucket per endpoint class.
func BucketKey(class EndpointClass, client string) string {
	return "crmhub:rl:" + string(class) + ":" + client
}
