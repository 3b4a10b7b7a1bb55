package utils

//local backends
//docker run -p 6379:6379 -d redis
//docker run -p 6333:6333 -p 6334:6334 -v vectorDBData:/qdrant/storage qdrant/qdrant
//STORE_BACKEND=memory VECTOR_BACKEND=memory runs without either

//regenerate cmd/api/docs after changing handler annotations
//swag init -g cmd/api/main.go --parseDependency --parseInternal --dir ./ --output ./cmd/api/docs
