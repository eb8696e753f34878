package cli

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/roadrisk/roadrisk/pkg/highway"
	"github.com/roadrisk/roadrisk/pkg/predict"
)

type ufsResponse struct {
	UFs   []string `json:"ufs"`
	Total int      `json:"total"`
}

func highwayUFsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		ufs := s.current().catalog.UFs()
		writeData(w, &ufsResponse{UFs: ufs, Total: len(ufs)})
	}
}

type highwaysResponse struct {
	UF       string         `json:"uf"`
	Highways []highway.Info `json:"highways"`
	Total    int            `json:"total"`
}

func highwaysByUFAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uf := strings.ToUpper(r.PathValue("uf"))
		list := s.current().catalog.ByUF(uf)
		writeData(w, &highwaysResponse{UF: uf, Highways: list, Total: len(list)})
	}
}

func highwayValidateAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		uf, br, kmStr := q.Get("uf"), q.Get("br"), q.Get("km")
		for _, k := range []string{"uf", "br", "km"} {
			if q.Get(k) == "" {
				writeErr(w, r, &predict.ValidationError{Field: k, Err: predict.ErrMissingField})
				return
			}
		}
		km, err := strconv.ParseFloat(kmStr, 64)
		if err != nil {
			writeErr(w, r, &predict.ValidationError{Field: "km", Reason: fmt.Sprintf("not a number: %q", kmStr), Err: predict.ErrInvalidField})
			return
		}
		writeData(w, s.current().catalog.ValidateKM(uf, br, km))
	}
}

type searchResponse struct {
	Query   string            `json:"query"`
	Results []highway.Located `json:"results"`
	Total   int               `json:"total"`
}

func highwaySearchAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeErr(w, r, &predict.ValidationError{Field: "q", Err: predict.ErrMissingField})
			return
		}
		list := s.current().catalog.Search(q, r.URL.Query().Get("uf"))
		writeData(w, &searchResponse{Query: q, Results: list, Total: len(list)})
	}
}

func highwayDropdownAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeData(w, s.current().catalog.DropdownOptions(r.PathValue("uf")))
	}
}

func highwayStatisticsAPIHandler(s *server) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, s.current().catalog.Statistics())
	}
}
