package notify

import (
	"github.com/mcouto/reparcel/config"
)

// RoutesFromConfig builds delivery routes for the channels enabled in cfg.
// Channels left disabled produce no route.
func RoutesFromConfig(cfg config.NotifyConfig) []Route {
	var routes []Route
	if cfg.Email.Enabled {
		var opts []EmailOption
		if cfg.Email.Username != "" {
			opts = append(opts, WithSMTPAuth(cfg.Email.Username, cfg.Email.Password))
		}
		routes = append(routes, Route{
			Channel:     NewEmail(cfg.Email.Host, cfg.Email.Port, cfg.Email.From, cfg.Email.To, opts...),
			MinSeverity: Severity(cfg.Email.MinSeverity),
			Kinds:       eventKinds(cfg.Email.Kinds),
		})
	}
	if cfg.SMS.Enabled {
		routes = append(routes, Route{
			Channel:     NewSMS(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.To),
			MinSeverity: Severity(cfg.SMS.MinSeverity),
			Kinds:       eventKinds(cfg.SMS.Kinds),
		})
	}
	if cfg.Webhook.Enabled {
		routes = append(routes, Route{
			Channel:     NewWebhook(cfg.Webhook.URL, cfg.Webhook.Token, cfg.Webhook.Timeout),
			MinSeverity: Severity(cfg.Webhook.MinSeverity),
			Kinds:       eventKinds(cfg.Webhook.Kinds),
		})
	}
	return routes
}

func eventKinds(names []string) []Kind {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		kinds = append(kinds, Kind(name))
	}
	return kinds
}
