package audit

import "strings"

// field maps one output key to a path in the report.
type field struct {
	key  string
	path []string
}

func f(key string, path ...string) field {
	return field{key: key, path: path}
}

func score(key, auditID string) field {
	return f(key, "audits", auditID, "score")
}

func display(key, auditID string) field {
	return f(key, "audits", auditID, "displayValue")
}

func displayMode(key, auditID string) field {
	return f(key, "audits", auditID, "scoreDisplayMode")
}

func group(key, groupID, attr string) field {
	return f(key, "categoryGroups", groupID, attr)
}

// fields is applied in order. Several keys appear more than once with different sources
// (server_response_time, interactive, mainthread_work_breakdown, font_size, link_text and
// the repeated SEO block); the later entry wins. Consumers depend on the exact values, so the
// duplicates stay.
var fields = []field{
	f("performance", "categories", "performance", "score"),
	f("accessibility", "categories", "accessibility", "score"),
	f("best_practices", "categories", "best-practices", "score"),
	f("seo", "categories", "seo", "score"),

	display("largest_contentful_paint", "largest-contentful-paint"),
	display("first_contentful_paint", "first-contentful-paint"),
	score("first_contentful_paint_score", "first-contentful-paint"),
	display("cumulative_layout_shift", "cumulative-layout-shift"),
	score("cumulative_layout_shift_score", "cumulative-layout-shift"),
	display("total_blocking_time", "total-blocking-time"),
	display("max_potential_fid", "max-potential-fid"),
	score("max_potential_fid_score", "max-potential-fid"),
	display("speed_index", "speed-index"),
	display("first_meaningful_paint", "first-meaningful-paint"),
	display("interactive", "interactive"),
	display("largest_contentful_paint_element", "largest-contentful-paint-element"),

	f("requested_url", "requestedUrl"),
	f("main_document_url", "mainDocumentUrl"),
	f("final_displayed_url", "finalDisplayedUrl"),
	f("final_url", "finalUrl"),
	f("fetch_time", "fetchTime"),
	f("gather_mode", "gatherMode"),
	f("run_warnings", "runWarnings"),
	f("user_agent", "userAgent"),
	f("network_user_agent", "environment", "networkUserAgent"),
	f("host_user_agent", "environment", "hostUserAgent"),
	f("benchmark_index", "environment", "benchmarkIndex"),

	score("audits", "is-on-https"),
	f("redirects_http", "audits", "redirects-http"),
	score("screenshot_thumbnails", "screenshot-thumbnails"),
	score("final_screenshot", "final-screenshot"),
	score("errors_in_console", "errors-in-console"),
	f("errors_in_console_details", "audits", "errors-in-console", "details", "items"),
	score("server_response_time", "server-response-time"),
	f("server_response_time", "audits", "server-response-time", "details", "items", "responseTime"),
	display("server_response_time_display_value", "server-response-time"),
	f("server_response_time_details", "audits", "server-response-time", "details", "items", "responseTime"),
	score("interactive", "interactive"),
	display("interactive_display_value", "interactive"),
	score("user_timings", "user-timings"),
	displayMode("user_timings_display_mode", "user-timings"),
	score("critical_request_chains", "critical-request-chains"),
	display("critical_request_chains_display_value", "critical-request-chains"),
	score("redirects_numeric_value", "redirects"),
	display("redirects_display_value", "redirects"),
	score("image_aspect_ratio", "image-aspect-ratio"),
	score("image_size_responsive", "image-size-responsive"),
	score("deprecations", "deprecations"),
	score("third_party_cookies", "third-party-cookies"),
	score("mainthread_work_breakdown", "mainthread-work-breakdown"),
	display("mainthread_work_breakdown", "mainthread-work-breakdown"),

	score("notification_on_start", "notification-on-start"),
	displayMode("notification_on_start_display_mode", "notification-on-start"),
	score("paste_preventing_inputs", "paste-preventing-inputs"),
	displayMode("paste_preventing_inputs_display_mode", "paste-preventing-inputs"),
	score("uses_http2", "uses-http2"),
	displayMode("uses_http2_display_mode", "uses-http2"),
	score("uses_passive_event_listeners", "uses-passive-event-listeners"),
	displayMode("uses_passive_event_listeners_display_mode", "uses-passive-event-listeners"),
	score("meta_description", "meta-description"),
	displayMode("meta_description_display_mode", "meta-description"),
	score("http_status_code", "http-status-code"),
	displayMode("http_status_code_display_mode", "http-status-code"),
	score("font_size", "font-size"),
	display("font_size_display_value", "font-size"),
	score("link_text", "link-text"),
	display("link_text_display_value", "link-text"),
	score("crawlable_anchors", "crawlable-anchors"),
	score("is_crawlable", "is-crawlable"),
	score("robots_txt", "robots-txt"),
	score("hreflang", "hreflang"),
	score("canonical", "canonical"),
	score("structured_data", "structured-data"),
	score("bf_cache", "bf-cache"),
	f("config_settings", "configSettings"),
	f("total", "total"),

	score("notification_on_start", "notification-on-start"),
	score("paste_preventing_inputs", "paste-preventing-inputs"),
	score("uses_http2", "uses-http2"),
	score("uses_passive_event_listeners", "uses-passive-event-listeners"),
	score("meta_description", "meta-description"),
	score("http_status_code", "http-status-code"),
	display("font_size", "font-size"),
	display("link_text", "link-text"),
	score("crawlable_anchors", "crawlable-anchors"),
	score("is_crawlable", "is-crawlable"),
	score("robots_txt", "robots-txt"),
	score("hreflang", "hreflang"),
	score("canonical", "canonical"),
	score("structured_data", "structured-data"),
	score("bf_cache", "bf-cache"),
	score("network_requests", "network-requests"),
	score("network_server_latency", "network-server-latency"),
	score("main_thread_tasks", "main-thread-tasks"),
	score("resource_summary", "resource-summary"),
	score("third_party_summary", "third-party-summary"),
	display("largest_contentful_paint_element", "largest-contentful-paint-element"),
	score("unsized_images", "unsized-images"),
	score("valid_source_maps", "valid-source-maps"),
	score("aria_allowed_attr", "aria-allowed-attr"),
	score("aria_valid_attr", "aria-valid-attr"),
	score("color_contrast", "color-contrast"),
	score("document_title", "document-title"),
	score("html_has_lang", "html-has-lang"),
	score("html_lang_valid", "html-lang-valid"),
	score("image_alt", "image-alt"),
	score("image_redundant_alt", "image-redundant-alt"),
	score("meta_viewport", "meta-viewport"),
	score("target_size", "target-size"),
	display("total_byte_weight", "total-byte-weight"),
	display("offscreen_images", "offscreen-images"),
	display("render_blocking_resources", "render-blocking-resources"),
	display("unused_css_rules", "unused-css-rules"),
	display("unused_javascript", "unused-javascript"),
	score("modern_image_formats", "modern-image-formats"),
	score("uses_optimized_images", "uses-optimized-images"),
	score("uses_text_compression", "uses-text-compression"),
	score("uses_responsive_images", "uses-responsive-images"),
	display("efficient_animated_content", "efficient-animated-content"),
	display("legacy_javascript", "legacy-javascript"),
	score("charset", "charset"),
	display("dom_size", "dom-size"),
	score("geolocation_on_start", "geolocation-on-start"),
	score("inspector_issues", "inspector-issues"),
	score("no_document_write", "no-document-write"),
	score("js_libraries", "js-libraries"),

	group("metrics_title", "metrics", "title"),
	group("diagnostics_title", "diagnostics", "title"),
	group("diagnostics_description", "diagnostics", "description"),
	group("a11y_best_practices_title", "a11y-best-practices", "title"),
	group("a11y_best_practices_description", "a11y-best-practices", "description"),
	group("a11y_color_contrast_title", "a11y-color-contrast", "title"),
	group("a11y_color_contrast_description", "a11y-color-contrast", "description"),
	group("a11y_names_labels_title", "a11y-names-labels", "title"),
	group("a11y_names_labels_description", "a11y-names-labels", "description"),
	group("a11y_navigation_title", "a11y-navigation", "title"),
	group("a11y_navigation_description", "a11y-navigation", "description"),
	group("a11y_aria_title", "a11y-aria", "title"),
	group("a11y_aria_description", "a11y-aria", "description"),
	group("a11y_language_title", "a11y-language", "title"),
	group("a11y_language_description", "a11y-language", "description"),
	group("a11y_audio_video_title", "a11y-audio-video", "title"),
	group("a11y_audio_video_description", "a11y-audio-video", "description"),
	group("a11y_tables_lists_title", "a11y-tables-lists", "title"),
	group("a11y_tables_lists_description", "a11y-tables-lists", "description"),
	group("seo_mobile_title", "seo-mobile", "title"),
	group("seo_mobile_description", "seo-mobile", "description"),
	group("seo_content_title", "seo-content", "title"),
	group("seo_content_description", "seo-content", "description"),
	group("seo_crawl_title", "seo-crawl", "title"),
	group("seo_crawl_description", "seo-crawl", "description"),
	group("best_practices_trust_safety_title", "best-practices-trust-safety", "title"),
	group("best_practices_ux_title", "best-practices-ux", "title"),
	group("best_practices_browser_compat_title", "best-practices-browser-compat", "title"),
	group("best_practices_general_title", "best-practices-general", "title"),
	group("hidden_title", "hidden", "title"),
}

// Project flattens report into the API response. It has no side effects; the first path that
// cannot be walked aborts the projection with ErrProjection.
func Project(report *Report) (*Response, error) {
	if report == nil {
		return nil, ErrProjection
	}
	resp := NewResponse()
	for _, fl := range fields {
		value, defined, err := report.Lookup(fl.path...)
		if err != nil {
			return nil, err
		}
		resp.Set(fl.key, value, defined)
	}
	return resp, nil
}

// projectedPaths lists every report path the projection reads, in order, dot-joined.
func projectedPaths() []string {
	paths := make([]string, 0, len(fields))
	for _, fl := range fields {
		paths = append(paths, strings.Join(fl.path, "."))
	}
	return paths
}
