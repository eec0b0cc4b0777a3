package snapshot

// Catalog lists the snapshots published by the weather and flooding
// pipelines. Group and Name form the route, Group/Name and
// Group/ultima_atualizacao_Name.
func Catalog() []Spec {
	return []Spec{
		{
			Group: "clima_pluviometro", Name: "precipitacao_15min",
			DataKey: "data_last_15min_rain", UpdateKey: "data_last_15min_rain_update",
			LocalKey: "cache_last_15min_rain",
		},
		{
			Group: "clima_pluviometro", Name: "precipitacao_120min",
			DataKey: "data_last_120min_rain", UpdateKey: "data_last_120min_rain_update",
			LocalKey: "cache_last_120min_rain",
		},
		{
			Group: "clima_radar", Name: "precipitacao_15min",
			DataKey: "data_chuva_recente_radar_inea", UpdateKey: "data_update_chuva_recente_radar_inea",
		},
		{
			Group: "clima_radar", Name: "precipitacao_120min",
			DataKey: "data_chuva_passado_radar_inea", UpdateKey: "data_update_chuva_passado_radar_inea",
		},
		{
			Group: "clima_alagamento", Name: "alagamento_15min",
			DataKey: "data_alagamento_recente_comando", UpdateKey: "data_update_alagamento_recente_comando",
			Backup: true,
		},
		{
			Group: "clima_alagamento", Name: "alagamento_120min",
			DataKey: "data_alagamento_passado_comando", UpdateKey: "data_update_alagamento_passado_comando",
			Backup: true,
		},
		{
			Group: "clima_alagamento", Name: "alagamento_detectado_ia",
			DataKey: "data_alagamento_detectado_ia", UpdateKey: "data_update_alagamento_detectado_ia",
			Backup: true,
		},
	}
}
