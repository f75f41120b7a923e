package main

import (
	"errors"

	"geodis/internal/geoerr"
	"geodis/internal/geohash"
	"geodis/internal/iprange"
	"geodis/internal/store"

	"github.com/spf13/cobra"
)

type entityOut struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes"`
	DistanceKm *float64          `json:"distance_km,omitempty"`
}

func lookupType(name string) (store.Type, error) {
	t, ok := store.TypeByName(name)
	if !ok {
		return store.Type{}, geoerr.Invalid("type", "unknown type %q", name)
	}
	return t, nil
}

func newNearestCmd(a *app) *cobra.Command {
	var lat, lon float64
	var typ string
	cmd := &cobra.Command{
		Use:   "nearest",
		Short: "print the stored entity nearest to a coordinate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupType(typ)
			if err != nil {
				return err
			}
			e, ok, err := a.st.NearestByCoordinate(cmd.Context(), t, lat, lon)
			if err != nil {
				return err
			}
			if !ok {
				return geoerr.ErrNotFound
			}
			out := entityOut{Type: t.Name, ID: t.ID(e), Attributes: e}
			if elat, elon, err := e.Point(); err == nil {
				d := geohash.DistanceKm(lat, lon, elat, elon)
				out.DistanceKm = &d
			}
			return a.printJSON(out)
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude in degrees")
	cmd.Flags().Float64Var(&lon, "lon", 0, "longitude in degrees")
	cmd.Flags().StringVar(&typ, "type", "city", "entity type: city|zip")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func newIPCmd(a *app) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "ip <addr>",
		Short: "resolve an IPv4 address to the nearest stored entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := lookupType(typ)
			if err != nil {
				return err
			}
			e, ok, err := a.idx.ResolveIP(cmd.Context(), args[0], t)
			if err != nil {
				return err
			}
			if !ok {
				return geoerr.ErrNotFound
			}
			return a.printJSON(entityOut{Type: t.Name, ID: t.ID(e), Attributes: e})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "city", "entity type: city|zip")
	return cmd
}

func newIPAuxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ip-aux <addr>",
		Short: "print the auxiliary code (postal code) of the range containing an IPv4 address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			aux, ok, err := a.idx.ResolveIPToAux(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return geoerr.ErrNotFound
			}
			return a.printJSON(map[string]string{"ip": args[0], "aux": aux})
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print index sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := map[string]int64{}
			for _, t := range []store.Type{store.City, store.ZIPCode} {
				n, err := a.st.Count(ctx, t)
				if err != nil {
					return err
				}
				out[t.IndexKey()] = n
			}
			n, err := a.idx.Count(ctx)
			if err != nil {
				return err
			}
			out[iprange.LocationsKey] = n
			return a.printJSON(out)
		},
	}
}

// exitCode：未命中 1，参数错误 2，存储不可用 3，其他 4
func exitCode(err error) int {
	switch {
	case errors.Is(err, geoerr.ErrNotFound):
		return 1
	case geoerr.IsValidation(err):
		return 2
	case geoerr.IsUnavailable(err):
		return 3
	}
	return 4
}
