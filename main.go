package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/classroll/attendancebackend/config"
	"github.com/classroll/attendancebackend/database"
	"github.com/classroll/attendancebackend/handlers"
	"github.com/classroll/attendancebackend/media"
	"github.com/classroll/attendancebackend/repository"
	"github.com/classroll/attendancebackend/services"
	"github.com/classroll/attendancebackend/workers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.PhotosPath, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to obtain SQL connection: %v", err)
	}
	defer sqlDB.Close()

	photoStore, err := media.NewPhotoStore(cfg.PhotosPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize photo store: %v", err)
	}
	cropLoader := media.NewCropLoader(cfg.PhotosPath)

	modelRegistry := services.NewModelRegistry(cfg)
	defer modelRegistry.Close()
	if len(modelRegistry) == 0 {
		log.Println("WARNING: No embedding models loaded; generation endpoints will fail until weights are provided")
	}

	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	cropRepo := repository.NewFaceCropRepository(db)
	embeddingRepo := repository.NewEmbeddingRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	generationTimeout := time.Duration(cfg.GenerationTimeoutMs) * time.Millisecond
	embeddingService := services.NewEmbeddingService(cropRepo, embeddingRepo, modelRegistry, cropLoader, generationTimeout)
	matcherService := services.NewMatcherService(cropRepo, studentRepo, sessionRepo, embeddingRepo)
	clusterService := services.NewClusterService(db, sessionRepo, studentRepo, embeddingRepo)
	mergeService := services.NewMergeService(db, studentRepo)
	attendanceService := services.NewAttendanceService(sqlDB, classRepo, studentRepo, sessionRepo, attendanceRepo)

	log.Printf("Initializing embedding worker pool (Workers: %d, Queue Size: %d)...", cfg.NumEmbeddingWorkers, cfg.EmbeddingQueueSize)
	embeddingProcessor := workers.NewEmbeddingProcessor(embeddingService, sessionRepo, cropRepo, cfg.EmbeddingQueueSize, cfg.NumEmbeddingWorkers)
	defer embeddingProcessor.Stop()

	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing session photos in: %s", cfg.PhotosPath)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	classHandler := &handlers.ClassHandler{ClassRepo: classRepo, StudentRepo: studentRepo, SessionRepo: sessionRepo}
	studentHandler := &handlers.StudentHandler{StudentRepo: studentRepo, ClassRepo: classRepo, CropRepo: cropRepo}
	sessionHandler := &handlers.SessionHandler{SessionRepo: sessionRepo, ClassRepo: classRepo, Photos: photoStore, Embeddings: embeddingProcessor}
	cropHandler := &handlers.FaceCropHandler{CropRepo: cropRepo, SessionRepo: sessionRepo, Matcher: matcherService}
	engineHandler := &handlers.EngineHandler{Cfg: cfg, Embeddings: embeddingService, Matcher: matcherService, Clusters: clusterService, Merges: mergeService}
	attendanceHandler := &handlers.AttendanceHandler{Attendance: attendanceService}

	r.Route("/api", func(r chi.Router) {
		r.Route("/classes", func(r chi.Router) {
			r.Post("/", classHandler.CreateClass)
			r.Get("/", classHandler.ListClasses)
			r.Route("/{class_id}", func(r chi.Router) {
				r.Get("/", classHandler.GetClass)
				r.Put("/", classHandler.UpdateClass)
				r.Delete("/", classHandler.DeleteClass)
				r.Get("/students", classHandler.ListStudents)
				r.Get("/sessions", classHandler.ListSessions)
				r.Get("/attendance", attendanceHandler.Report)
				r.Get("/suggestions", engineHandler.Suggestions)
			})
		})

		r.Route("/students", func(r chi.Router) {
			r.Post("/", studentHandler.CreateStudent)
			r.Post("/merge", engineHandler.MergeStudents)
			r.Route("/{student_id}", func(r chi.Router) {
				r.Get("/", studentHandler.GetStudent)
				r.Put("/", studentHandler.UpdateStudent)
				r.Delete("/", studentHandler.DeleteStudent)
				r.Get("/crops", studentHandler.ListCrops)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.CreateSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", sessionHandler.GetSession)
				r.Delete("/", sessionHandler.DeleteSession)
				r.Post("/images", sessionHandler.UploadImage)
				r.Get("/images", sessionHandler.ListImages)
				r.Post("/embeddings", sessionHandler.QueueEmbeddings)
				r.Post("/cluster", engineHandler.ClusterSession)
				r.Post("/attendance", attendanceHandler.Mark)
				r.Delete("/attendance", attendanceHandler.Unmark)
			})
		})

		r.Route("/images/{image_id}/crops", func(r chi.Router) {
			r.Get("/", cropHandler.ListCropsByImage)
		})

		r.Route("/crops", func(r chi.Router) {
			r.Post("/", cropHandler.AddCrop)
			r.Post("/assign_all", engineHandler.AssignAll)
			r.Route("/{crop_id}", func(r chi.Router) {
				r.Get("/", cropHandler.GetCrop)
				r.Delete("/", cropHandler.DeleteCrop)
				r.Post("/embedding", engineHandler.GenerateEmbedding)
				r.Post("/assign", engineHandler.AssignCrop)
				r.Put("/tag", cropHandler.TagCrop)
				r.Delete("/tag", cropHandler.UntagCrop)
			})
		})

		photosSubDir := filepath.Base(cfg.PhotosPath)
		r.Get(fmt.Sprintf("/%s/*", photosSubDir), handlers.PhotoServer(cfg.PhotoStoragePath, photosSubDir))
		log.Printf("Registered photo server at /%s/*", photosSubDir)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
