package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MCatalogRefreshes        MetricKey = "catalog_refresh_total"
	MCatalogRefreshDuration  MetricKey = "catalog_refresh_duration_seconds"
	MCartMutations           MetricKey = "cart_mutations_total"
)
