package maputil

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Messages shown in feature-info popups.
const (
	MessageUnavailable = "Les données sont inaccessibles"
	MessageNotGeoJSON  = "Les données ne sont pas au format geoJSON"
)

type featurePopup struct {
	Title          string
	FeatureURL     string
	Status         string
	FeatureType    string
	FeatureTypeURL string
	UpdatedOn      string
	Author         string
}

// Author returns the author line of a creator: "first last" when a full
// name is known, else the username, else "".
func Author(c *Creator) string {
	if c == nil {
		return ""
	}
	if c.FullName != "" {
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	return c.Username
}

// PopupContent renders the popup HTML bound to a feature's shape.
func (r *Renderer) PopupContent(feat Feature) (string, error) {
	return r.popupContent(feat)
}

func (r *Renderer) popupContent(feat Feature) (string, error) {
	p := feat.Properties
	return r.tmpl.Render("feature-popup", featurePopup{
		Title:          p.Title,
		FeatureURL:     p.FeatureURL,
		Status:         p.Status.Label,
		FeatureType:    p.FeatureType.Title,
		FeatureTypeURL: p.FeatureTypeURL,
		UpdatedOn:      p.UpdatedOn,
		Author:         Author(p.Creator),
	})
}

type property struct {
	Key   string
	Value string
}

type featureInfoPopup struct {
	Title      string
	Message    string
	Properties []property
}

// featureInfoContent renders the properties of the first returned feature.
func (r *Renderer) featureInfoContent(title string, fc *geojson.FeatureCollection) (string, error) {
	data := featureInfoPopup{Title: title}
	if fc != nil && len(fc.Features) > 0 {
		props := fc.Features[0].Properties
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			data.Properties = append(data.Properties, property{Key: k, Value: fmt.Sprint(props[k])})
		}
	}
	return r.tmpl.Render("featureinfo-popup", data)
}

func (r *Renderer) messageContent(title, message string) string {
	html, err := r.tmpl.Render("featureinfo-popup", featureInfoPopup{Title: title, Message: message})
	if err != nil {
		r.log.Warn().Err(err).Msg("feature info popup render failed")
		return message
	}
	return html
}
