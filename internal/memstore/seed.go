package memstore

import "github.com/mmeshcher/autoecole-booking/internal/model"

const (
	defaultSchoolName    = "Ma Nouvelle Auto-École"
	defaultSchoolAddress = "Adresse à compléter"
	defaultSchoolCity    = "Yaoundé"
)

// DefaultSchools возвращает каталог автошкол, которым заполняется тестовый API.
func DefaultSchools() []model.School {
	return []model.School{
		{
			ID: "s1", Name: "Auto-École La Référence", City: "Yaoundé", Address: "Carrefour Bastos, Yaoundé",
			Rating: 4.8, Price: 65000,
			Offers: []model.Offer{
				{ID: "o1", Name: "Forfait Permis B Classique", Description: "La formation complète pour obtenir votre permis B.", Price: 65000, Hours: 20},
				{ID: "o2", Name: "Forfait Code Illimité", Description: "Accès à la salle de code et à l'application en illimité.", Price: 15000, Hours: 0},
				{ID: "o3", Name: "Permis Accéléré", Description: "Votre permis en 3 semaines chrono.", Price: 120000, Hours: 30},
			},
		},
		{
			ID: "s2", Name: "Planète Conduite Douala", City: "Douala", Address: "Akwa, Douala",
			Rating: 4.5, Price: 60000,
			Offers: []model.Offer{
				{ID: "o4", Name: "Permis Moto (A)", Description: "Formation complète sur nos motos Yamaha neuves.", Price: 45000, Hours: 15},
				{ID: "o5", Name: "Permis Auto (B)", Description: "La formation classique efficace.", Price: 60000, Hours: 20},
			},
		},
		{
			ID: "s3", Name: "Auto-École Emergence", City: "Yaoundé", Address: "Biyem-Assi, Yaoundé",
			Rating: 4.2, Price: 55000,
			Offers: []model.Offer{
				{ID: "o6", Name: "Offre Étudiant", Description: "Tarif spécial sur présentation de carte étudiant.", Price: 55000, Hours: 20},
			},
		},
		{
			ID: "s4", Name: "Campus Conduite", City: "Douala", Address: "Bonapriso, Douala",
			Rating: 4.9, Price: 85000,
			Offers: []model.Offer{
				{ID: "o7", Name: "Pack Premium", Description: "Confort et technologie pour une réussite assurée.", Price: 85000, Hours: 25},
			},
		},
		{
			ID: "s5", Name: "Auto-École Université", City: "Yaoundé", Address: "Ngoa-Ekélé, Yaoundé",
			Rating: 3.9, Price: 50000,
		},
	}
}
